// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package index defines the vector index contract: a searchable, durable
// mapping from embedding vectors to document chunks. Concrete backends
// register themselves through RegisterBackend.
package index

import (
	"context"
	"sync"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Chunk is a bounded contiguous slice of a source document, the unit of
// retrieval. Chunks are immutable once created; Seq orders chunks within
// their source document for display only and never influences ranking.
type Chunk struct {
	ID         string
	Text       string
	SourcePath string
	Seq        int
}

// EmbeddedChunk pairs a chunk with its dense vector. All vectors in one
// index must come from the same embedder configuration.
type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk is a single search result. Distance is non-negative and
// smaller means more similar under the backend's metric.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

// Fingerprint identifies the embedder configuration an index was built
// with. An index refuses queries from a different configuration.
type Fingerprint struct {
	Provider  string
	Model     string
	Dimension int
}

// Matches reports whether two fingerprints describe the same embedder.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Provider == other.Provider && f.Model == other.Model && f.Dimension == other.Dimension
}

// Index is a read-only snapshot of an ingested document collection.
// Implementations must be safe for concurrent Search calls.
type Index interface {
	// Search returns the k nearest chunks sorted ascending by distance.
	// k larger than the stored count returns all results; searching an
	// empty index returns an empty slice. Ties keep insertion order.
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
	Count() int
	Fingerprint() Fingerprint
	Close() error
}

// Backend creates and reloads index snapshots at a fixed durable location.
// Build replaces prior persisted state wholesale and only becomes visible
// once fully written; Open reloads the last successfully built snapshot.
type Backend interface {
	Open(ctx context.Context) (Index, error)
	Build(ctx context.Context, fp Fingerprint, chunks []EmbeddedChunk) (Index, error)
}

// Config selects and parameterises an index backend.
type Config struct {
	Backend string
	Path    string
	Metric  string
}

// BackendFactory constructs a Backend for a given configuration.
type BackendFactory func(cfg Config) (Backend, error)

var (
	backendFactories = map[string]BackendFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers a factory for a named index backend. Backend
// packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	backendFactories[name] = f
}

// NewBackend resolves the configured backend, defaulting to "flat".
func NewBackend(cfg Config) (Backend, error) {
	name := cfg.Backend
	if name == "" {
		name = "flat"
	}

	factoriesMu.RLock()
	factory, ok := backendFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, grimerr.Errorf(grimerr.CodeIndexBackendUnsupported, "unsupported index backend: %q", name)
	}

	return factory(cfg)
}
