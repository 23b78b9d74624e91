package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/optimus/internal/models"
)

func TestStubEngine_EchoesTrimmedInputByDefault(t *testing.T) {
	e := NewStubEngine()

	out, err := e.Execute(context.Background(), models.LanguagePython, "print(input())", []byte("  hello  \n"), 1000)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Stdout)
	assert.False(t, out.TimedOut)
	assert.False(t, out.RuntimeError)
}

func TestStubEngine_ScriptOverridesBehaviorForMatchingInput(t *testing.T) {
	e := NewStubEngine()
	e.Script["slow"] = StubBehavior{TimedOut: true}
	e.Script["boom"] = StubBehavior{RuntimeError: true, Stderr: "panic"}

	out, err := e.Execute(context.Background(), models.LanguagePython, "src", []byte("slow"), 1000)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)

	out, err = e.Execute(context.Background(), models.LanguagePython, "src", []byte("boom"), 1000)
	require.NoError(t, err)
	assert.True(t, out.RuntimeError)
	assert.Equal(t, "panic", out.Stderr)
}

func TestStubEngine_RejectsOversizedSource(t *testing.T) {
	e := NewStubEngine()
	oversized := strings.Repeat("a", MaxSourceBytes+1)

	_, err := e.Execute(context.Background(), models.LanguagePython, oversized, []byte("x"), 1000)
	assert.ErrorIs(t, err, ErrSourceTooLarge)
}

func TestStubEngine_RejectsOversizedInput(t *testing.T) {
	e := NewStubEngine()
	oversized := make([]byte, MaxInputBytes+1)

	_, err := e.Execute(context.Background(), models.LanguagePython, "src", oversized, 1000)
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestStubEngine_PrewarmAndCloseAreNoops(t *testing.T) {
	e := NewStubEngine()
	assert.NoError(t, e.Prewarm(context.Background(), []models.Language{models.LanguagePython}))
	assert.NoError(t, e.Close())
}
