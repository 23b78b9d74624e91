// Package registry implements the process-wide, read-only language
// registry (§4.B): a map from language tag to image identifier, resource
// ceilings, and queue name, loaded once at startup and never mutated.
package registry

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/queue"
)

// LanguageEntry describes one enabled language's sandbox parameters.
type LanguageEntry struct {
	Language    models.Language `toml:"language"`
	Image       string          `toml:"image"`
	MemoryMiB   int64           `toml:"memory_mib"`
	CPULimit    float64         `toml:"cpu_limit"`
	Queue       string          `toml:"queue"`
}

// fileConfig is the on-disk shape the registry is loaded from.
type fileConfig struct {
	Languages []LanguageEntry `toml:"languages"`
}

// Registry is immutable after Load/New — no method mutates it.
type Registry struct {
	entries map[models.Language]LanguageEntry
}

// defaultEntries is used when no config file is provided, covering the
// three languages named in spec.md §3.
func defaultEntries() []LanguageEntry {
	return []LanguageEntry{
		{Language: models.LanguagePython, Image: "optimus-runner-python:latest", MemoryMiB: 256, CPULimit: 1.0, Queue: queue.MainQueueKey(models.LanguagePython)},
		{Language: models.LanguageJava, Image: "optimus-runner-java:latest", MemoryMiB: 512, CPULimit: 1.0, Queue: queue.MainQueueKey(models.LanguageJava)},
		{Language: models.LanguageRust, Image: "optimus-runner-rust:latest", MemoryMiB: 256, CPULimit: 1.0, Queue: queue.MainQueueKey(models.LanguageRust)},
	}
}

// New builds a Registry directly from entries, validating queue names
// against the canonical derivation.
func New(entries []LanguageEntry) (*Registry, error) {
	r := &Registry{entries: make(map[models.Language]LanguageEntry, len(entries))}
	for _, e := range entries {
		canonical := queue.MainQueueKey(e.Language)
		if e.Queue != canonical {
			return nil, fmt.Errorf("registry: language %q declares queue %q, expected canonical %q", e.Language, e.Queue, canonical)
		}
		if e.Image == "" {
			return nil, fmt.Errorf("registry: language %q missing image", e.Language)
		}
		r.entries[e.Language] = e
	}
	return r, nil
}

// Load reads a TOML registry file at path, falling back to the built-in
// default set when path is empty or the file is absent — mirroring the
// teacher's file-then-default config layering.
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(defaultEntries())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(defaultEntries())
		}
		return nil, fmt.Errorf("registry: failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("registry: failed to parse %s: %w", path, err)
	}
	if len(fc.Languages) == 0 {
		return New(defaultEntries())
	}
	return New(fc.Languages)
}

// Lookup returns the entry for a language, or models.ErrUnknownLanguage.
func (r *Registry) Lookup(lang models.Language) (LanguageEntry, error) {
	e, ok := r.entries[lang]
	if !ok {
		return LanguageEntry{}, fmt.Errorf("%w: %q", models.ErrUnknownLanguage, lang)
	}
	return e, nil
}

// Enabled returns the set of enabled languages, in a stable order.
func (r *Registry) Enabled() []models.Language {
	langs := make([]models.Language, 0, len(r.entries))
	for _, l := range []models.Language{models.LanguagePython, models.LanguageJava, models.LanguageRust} {
		if _, ok := r.entries[l]; ok {
			langs = append(langs, l)
		}
	}
	return langs
}

// Validate confirms that (language, queue, image) agree with the registry.
// Used by worker startup's three-way binding check (§4.E).
func (r *Registry) Validate(lang models.Language, wantQueue, wantImage string) error {
	entry, err := r.Lookup(lang)
	if err != nil {
		return err
	}
	if entry.Queue != wantQueue {
		return fmt.Errorf("binding mismatch: worker queue %q does not match registry queue %q for language %q", wantQueue, entry.Queue, lang)
	}
	if entry.Image != wantImage {
		return fmt.Errorf("binding mismatch: worker image %q does not match registry image %q for language %q", wantImage, entry.Image, lang)
	}
	return nil
}
