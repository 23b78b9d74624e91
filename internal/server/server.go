// Package server implements the submission front-end (§4.F): a stateless
// HTTP surface over the key/queue schema. Handlers never block on engine
// execution; the worker owns that entirely.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/registry"
)

// Store is the subset of queue.Store the front-end depends on. Narrowing
// the dependency to an interface here, as in the worker package, lets
// handler tests run against an in-memory fake instead of a live Redis.
type Store interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, job *models.JobRequest) error
	GetResult(ctx context.Context, jobID string) (*models.ExecutionResult, bool, error)
	GetStatus(ctx context.Context, jobID string) (models.JobStatus, bool, error)
	SetControl(ctx context.Context, jobID string, control models.JobControl) error
	GetControl(ctx context.Context, jobID string) (models.JobControl, error)
	FindInLane(ctx context.Context, key, jobID string) (*models.JobRequest, error)
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	store     Store
	registry  *registry.Registry
	config    *common.Config
	logger    *common.Logger
	startedAt time.Time
	metrics   Metrics

	server *http.Server
}

// Metrics is the subset of the metrics collector's surface the front-end
// updates directly at submission time (§4.G "Submission-time counters").
type Metrics interface {
	IncSubmitted(lang models.Language)
	IncRejected(reason string)
	IncCancelled()
}

// NewServer builds the HTTP server and registers its routes. metricsHandler
// serves GET /metrics (§4.G); it is supplied by the caller so the server
// package never depends on the metrics package's own dependencies directly.
func NewServer(cfg *common.Config, store Store, reg *registry.Registry, metrics Metrics, metricsHandler http.Handler, logger *common.Logger) *Server {
	s := &Server{
		store:     store,
		registry:  reg,
		config:    cfg,
		logger:    logger,
		startedAt: time.Now(),
		metrics:   metrics,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	mux.Handle("/metrics", metricsHandler)
	handler := applyMiddleware(mux, logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the wrapped HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server, blocking until it exits.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting submission front-end")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
