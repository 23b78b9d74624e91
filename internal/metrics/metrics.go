// Package metrics implements the metrics collector (§4.G): Prometheus
// counters and a histogram fed by the completion pub/sub channel, a
// per-language queue-depth gauge refreshed on scrape, and the
// submission-time counters the front-end updates directly.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/registry"
)

// DepthSource is the subset of queue.Store the collector needs to refresh
// its per-language queue-depth gauge on scrape.
type DepthSource interface {
	QueueDepth(ctx context.Context, lang models.Language) (int64, error)
}

// CompletionSource is the subset of queue.Store the collector needs to
// subscribe to the completion channel (§4.G).
type CompletionSource interface {
	SubscribeCompletions(ctx context.Context) *redis.PubSub
}

// Collector owns a private Prometheus registry — never the global default
// registry — so multiple Collectors (as in tests) never collide.
type Collector struct {
	registry *prometheus.Registry
	reg      *registry.Registry
	depth    DepthSource
	logger   *common.Logger

	jobsCompleted  *prometheus.CounterVec
	executionTime  *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	submittedTotal *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	cancelledTotal prometheus.Counter
}

// New builds a Collector and registers every metric on its private
// registry.
func New(reg *registry.Registry, depth DepthSource, logger *common.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		reg:      reg,
		depth:    depth,
		logger:   logger,

		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimus_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal status, by language and status",
		}, []string{"language", "status"}),

		executionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optimus_execution_time_ms",
			Help:    "Job execution time in milliseconds, by language",
			Buckets: prometheus.ExponentialBuckets(10, 2, 14), // 10ms .. ~80s
		}, []string{"language"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimus_queue_depth",
			Help: "Current length of the main queue, by language",
		}, []string{"language"}),

		submittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimus_submissions_total",
			Help: "Total number of accepted submissions, by language",
		}, []string{"language"}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimus_rejections_total",
			Help: "Total number of rejected submissions, by reason",
		}, []string{"reason"}),

		cancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimus_cancellations_total",
			Help: "Total number of accepted cancellation requests",
		}),
	}

	c.registry.MustRegister(
		c.jobsCompleted,
		c.executionTime,
		c.queueDepth,
		c.submittedTotal,
		c.rejectedTotal,
		c.cancelledTotal,
	)
	return c
}

// IncSubmitted implements server.Metrics.
func (c *Collector) IncSubmitted(lang models.Language) {
	c.submittedTotal.WithLabelValues(lang.Display()).Inc()
}

// IncRejected implements server.Metrics.
func (c *Collector) IncRejected(reason string) {
	c.rejectedTotal.WithLabelValues(reason).Inc()
}

// IncCancelled implements server.Metrics.
func (c *Collector) IncCancelled() {
	c.cancelledTotal.Inc()
}

// observeCompletion updates the completion counter and execution-time
// histogram for one completion event.
func (c *Collector) observeCompletion(event models.CompletionEvent) {
	c.jobsCompleted.WithLabelValues(event.Language.Display(), string(event.Status)).Inc()
	c.executionTime.WithLabelValues(event.Language.Display()).Observe(float64(event.ExecutionTimeMS))
}

// refreshQueueDepth samples every enabled language's main queue length,
// called once per /metrics scrape (§4.G "On demand").
func (c *Collector) refreshQueueDepth(ctx context.Context) {
	for _, lang := range c.reg.Enabled() {
		n, err := c.depth.QueueDepth(ctx, lang)
		if err != nil {
			c.logger.Warn().Str("language", string(lang)).Err(err).Msg("Failed to sample queue depth")
			continue
		}
		c.queueDepth.WithLabelValues(lang.Display()).Set(float64(n))
	}
}

// Handler returns the /metrics scrape endpoint, refreshing the queue-depth
// gauge on every request before delegating to promhttp.
func (c *Collector) Handler() http.Handler {
	promHandler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.refreshQueueDepth(r.Context())
		promHandler.ServeHTTP(w, r)
	})
}
