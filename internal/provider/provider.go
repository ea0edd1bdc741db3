// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package provider defines the embedding and generation contracts and a
// registry of named provider implementations. Provider packages register
// factories from init(); callers resolve them by configuration name.
package provider

import (
	"context"
	"sync"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Embedder turns text into dense vectors. Implementations must return
// vectors of a fixed dimension for the lifetime of the instance.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every vector this embedder returns.
	Dimension() int
	// Model is the provider's model identifier.
	Model() string
	// Name is the provider name, e.g. "openai".
	Name() string
}

// Generator produces a free-text completion for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
	Name() string
}

// Config holds the credentials and selection for one provider instance.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	// MaxTokens caps generation output. Ignored by embedders.
	MaxTokens int
}

// EmbedderFactory constructs an Embedder for a given configuration.
type EmbedderFactory func(cfg Config) (Embedder, error)

// GeneratorFactory constructs a Generator for a given configuration.
type GeneratorFactory func(cfg Config) (Generator, error)

var (
	mu         sync.RWMutex
	embedders  = map[string]EmbedderFactory{}
	generators = map[string]GeneratorFactory{}
)

// RegisterEmbedder registers an embedder factory under a provider name.
// Provider packages call this from init(). Goroutine-safe.
func RegisterEmbedder(name string, f EmbedderFactory) {
	mu.Lock()
	defer mu.Unlock()
	embedders[name] = f
}

// RegisterGenerator registers a generator factory under a provider name.
func RegisterGenerator(name string, f GeneratorFactory) {
	mu.Lock()
	defer mu.Unlock()
	generators[name] = f
}

// NewEmbedder resolves a registered embedder provider by name.
func NewEmbedder(name string, cfg Config) (Embedder, error) {
	mu.RLock()
	f, ok := embedders[name]
	mu.RUnlock()
	if !ok {
		return nil, grimerr.Errorf(grimerr.CodeProviderNotFound,
			"no embedding provider registered under %q", name)
	}
	return f(cfg)
}

// NewGenerator resolves a registered generator provider by name.
func NewGenerator(name string, cfg Config) (Generator, error) {
	mu.RLock()
	f, ok := generators[name]
	mu.RUnlock()
	if !ok {
		return nil, grimerr.Errorf(grimerr.CodeProviderNotFound,
			"no generation provider registered under %q", name)
	}
	return f(cfg)
}
