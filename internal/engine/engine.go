// Package engine implements the sandboxed execution engine (§4.D): the
// capability {execute(language, source, input, timeout) -> raw output}.
// The worker and the evaluator depend only on the Engine interface, never
// on a concrete implementation — a container-based engine, a stub used by
// tests, or any future runner all satisfy it the same way (§9 "Polymorphic
// engine").
package engine

import (
	"context"
	"fmt"

	"github.com/bobmcallan/optimus/internal/models"
)

// Pre-flight input limits, applied independently of (and looser than) the
// front-end's own limits (§4.D).
const (
	MaxSourceBytes = 1 << 20      // 1 MiB
	MaxInputBytes  = 10 * (1 << 20) // 10 MiB
)

// ErrSourceTooLarge and ErrInputTooLarge are engine-level pre-flight
// rejections, not runtime errors — they never reach the evaluator.
var (
	ErrSourceTooLarge = fmt.Errorf("engine: source exceeds %d bytes", MaxSourceBytes)
	ErrInputTooLarge  = fmt.Errorf("engine: input exceeds %d bytes", MaxInputBytes)
)

// Engine executes one test case in an isolated sandbox and returns its raw
// output. It does not evaluate correctness — that is the evaluator's job.
type Engine interface {
	Execute(ctx context.Context, lang models.Language, sourceCode string, input []byte, timeoutMS uint64) (models.TestExecutionOutput, error)

	// Prewarm probes/pulls every enabled language's image. Called
	// non-blocking at worker startup (§4.D); a failure here is logged but
	// never fatal, since Execute falls back to a synchronous pull on miss.
	Prewarm(ctx context.Context, langs []models.Language) error

	// Close releases any engine-held resources (e.g. the Docker client).
	Close() error
}

// ValidateInput applies the pre-flight checks common to every Engine
// implementation.
func ValidateInput(sourceCode string, input []byte) error {
	if len(sourceCode) > MaxSourceBytes {
		return ErrSourceTooLarge
	}
	if len(input) > MaxInputBytes {
		return ErrInputTooLarge
	}
	return nil
}
