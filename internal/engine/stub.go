package engine

import (
	"bytes"
	"context"

	"github.com/bobmcallan/optimus/internal/models"
)

// StubEngine is a deterministic, in-process Engine used by the worker and
// engine tests: it echoes trimmed input as stdout, like the seed-test
// fixture described in spec.md §8. Its only errors are the pre-flight size
// rejections that ValidateInput applies to every Engine. Tests that need
// a timeout or runtime error for a specific call configure that behavior
// through Script.
type StubEngine struct {
	// Script, keyed by the verbatim input passed to Execute, lets a test
	// force a timeout or runtime error for a specific test case. Absent
	// entries fall through to the default echo behavior.
	Script map[string]StubBehavior
}

// StubBehavior overrides the default echo outcome for one input.
type StubBehavior struct {
	TimedOut     bool
	RuntimeError bool
	Stdout       string
	Stderr       string
}

// NewStubEngine returns a StubEngine with an empty script.
func NewStubEngine() *StubEngine {
	return &StubEngine{Script: make(map[string]StubBehavior)}
}

// Execute implements Engine.
func (e *StubEngine) Execute(ctx context.Context, lang models.Language, sourceCode string, input []byte, timeoutMS uint64) (models.TestExecutionOutput, error) {
	if err := ValidateInput(sourceCode, input); err != nil {
		return models.TestExecutionOutput{}, err
	}

	if behavior, ok := e.Script[string(input)]; ok {
		return models.TestExecutionOutput{
			ExecutionTimeMS: 1,
			Stdout:          behavior.Stdout,
			Stderr:          behavior.Stderr,
			TimedOut:        behavior.TimedOut,
			RuntimeError:    behavior.RuntimeError,
		}, nil
	}

	return models.TestExecutionOutput{
		ExecutionTimeMS: 1,
		Stdout:          string(bytes.TrimSpace(input)),
	}, nil
}

// Prewarm is a no-op for the stub.
func (e *StubEngine) Prewarm(ctx context.Context, langs []models.Language) error { return nil }

// Close is a no-op for the stub.
func (e *StubEngine) Close() error { return nil }

var _ Engine = (*StubEngine)(nil)
