package queue

import (
	"fmt"

	"github.com/bobmcallan/optimus/internal/models"
)

// Prefix is the fixed namespace for every Optimus key, per §4.A.
const Prefix = "optimus"

// CompletionChannel is the pub/sub topic workers publish completion events
// to and the metrics collector subscribes to.
const CompletionChannel = Prefix + ":metrics:completions"

// These key-derivation functions are pure and are the single source of
// truth for schema: both the front-end (producer) and the worker
// (consumer) call them, never constructing a key by hand.

// MainQueueKey returns the FIFO main queue key for a language.
func MainQueueKey(lang models.Language) string {
	return fmt.Sprintf("%s:queue:%s", Prefix, lang.Display())
}

// RetryQueueKey returns the retry lane key for a language.
func RetryQueueKey(lang models.Language) string {
	return fmt.Sprintf("%s:queue:%s:retry", Prefix, lang.Display())
}

// DLQKey returns the dead-letter lane key for a language. Append-only;
// never consumed by workers.
func DLQKey(lang models.Language) string {
	return fmt.Sprintf("%s:queue:%s:dlq", Prefix, lang.Display())
}

// ResultKey returns the result key for a job id.
func ResultKey(jobID string) string {
	return fmt.Sprintf("%s:result:%s", Prefix, jobID)
}

// StatusKey returns the status key for a job id.
func StatusKey(jobID string) string {
	return fmt.Sprintf("%s:status:%s", Prefix, jobID)
}

// ControlKey returns the control key for a job id.
func ControlKey(jobID string) string {
	return fmt.Sprintf("%s:control:%s", Prefix, jobID)
}
