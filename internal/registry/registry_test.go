package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/optimus/internal/models"
)

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.Language{models.LanguagePython, models.LanguageJava, models.LanguageRust}, reg.Enabled())

	entry, err := reg.Lookup(models.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "optimus-runner-python:latest", entry.Image)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Len(t, reg.Enabled(), 3)
}

func TestLoad_ParsesTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.toml")
	contents := `
[[languages]]
language = "python"
image = "custom-python:v2"
memory_mib = 128
cpu_limit = 0.5
queue = "optimus:queue:python"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []models.Language{models.LanguagePython}, reg.Enabled())
	entry, err := reg.Lookup(models.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "custom-python:v2", entry.Image)
	assert.Equal(t, int64(128), entry.MemoryMiB)
}

func TestLoad_RejectsUnparsableTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.toml")
	require.NoError(t, os.WriteFile(path, []byte("not valid toml [["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNew_RejectsNonCanonicalQueue(t *testing.T) {
	_, err := New([]LanguageEntry{
		{Language: models.LanguagePython, Image: "python:latest", Queue: "wrong-queue-name"},
	})
	assert.Error(t, err)
}

func TestNew_RejectsMissingImage(t *testing.T) {
	_, err := New([]LanguageEntry{
		{Language: models.LanguagePython, Queue: "optimus:queue:python"},
	})
	assert.Error(t, err)
}

func TestLookup_UnknownLanguage(t *testing.T) {
	reg, err := New(nil)
	require.NoError(t, err)

	_, err = reg.Lookup(models.LanguageRust)
	assert.ErrorIs(t, err, models.ErrUnknownLanguage)
}

func TestValidate_AcceptsMatchingBinding(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	entry, err := reg.Lookup(models.LanguageJava)
	require.NoError(t, err)

	assert.NoError(t, reg.Validate(models.LanguageJava, entry.Queue, entry.Image))
}

func TestValidate_RejectsQueueMismatch(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	entry, err := reg.Lookup(models.LanguageJava)
	require.NoError(t, err)

	err = reg.Validate(models.LanguageJava, "some-other-queue", entry.Image)
	assert.Error(t, err)
}

func TestValidate_RejectsImageMismatch(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	entry, err := reg.Lookup(models.LanguageJava)
	require.NoError(t, err)

	err = reg.Validate(models.LanguageJava, entry.Queue, "some-other-image")
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownLanguage(t *testing.T) {
	reg, err := New(nil)
	require.NoError(t, err)

	assert.Error(t, reg.Validate(models.LanguagePython, "any", "any"))
}
