package metrics

import (
	"context"
	"encoding/json"

	"github.com/bobmcallan/optimus/internal/models"
)

// RunCompletionSubscriber blocks, consuming completion events from source
// and folding each into the collector's counters/histogram, until ctx is
// cancelled or the subscription channel closes. Intended to run in its own
// goroutine for the lifetime of the front-end process.
func (c *Collector) RunCompletionSubscriber(ctx context.Context, source CompletionSource) {
	sub := source.SubscribeCompletions(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.CompletionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to unmarshal completion event")
				continue
			}
			c.observeCompletion(event)
		}
	}
}
