// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package flat implements an exact brute-force vector index held in
// memory and persisted as a single gob snapshot. It is the default
// backend: collections small enough to re-embed in one sitting do not
// need an approximate structure.
package flat

import (
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/grimoire-dev/grimoire/internal/index"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	snapshotFile    = "index.gob"
	snapshotVersion = 1
)

func init() {
	index.RegisterBackend("flat", New)
}

// Backend builds and reloads flat index snapshots under a directory.
type Backend struct {
	path   string
	metric string
}

// New creates a flat Backend rooted at cfg.Path.
func New(cfg index.Config) (index.Backend, error) {
	metric := cfg.Metric
	if metric == "" {
		metric = "l2"
	}
	if metric != "l2" && metric != "cosine" {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"flat: unsupported metric %q", metric)
	}
	if cfg.Path == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "flat: index path is required")
	}

	return &Backend{path: cfg.Path, metric: metric}, nil
}

// snapshot is the durable form: vectors and chunk metadata persisted as a
// unit so the index can be reloaded without re-embedding.
type snapshot struct {
	Version     int
	Fingerprint index.Fingerprint
	Metric      string
	Chunks      []index.Chunk
	Vectors     [][]float32
}

// Compile-time interface check.
var _ index.Index = (*Index)(nil)

// Index is an immutable in-memory snapshot. Search is read-only, so
// concurrent queries need no locking.
type Index struct {
	fp      index.Fingerprint
	metric  string
	chunks  []index.Chunk
	vectors [][]float32
}

// Build validates the embedded chunks, persists a new snapshot atomically
// (tmp file then rename), and returns the ready index. The previous
// snapshot stays authoritative until the rename.
func (b *Backend) Build(_ context.Context, fp index.Fingerprint, chunks []index.EmbeddedChunk) (index.Index, error) {
	if fp.Dimension <= 0 && len(chunks) > 0 {
		return nil, grimerr.Errorf(grimerr.CodeIndexBuildFailure,
			"flat: fingerprint dimension must be positive, got %d", fp.Dimension)
	}

	ix := &Index{
		fp:      fp,
		metric:  b.metric,
		chunks:  make([]index.Chunk, 0, len(chunks)),
		vectors: make([][]float32, 0, len(chunks)),
	}
	for _, ec := range chunks {
		if len(ec.Vector) != fp.Dimension {
			return nil, grimerr.New(grimerr.CodeIndexDimensionMismatch,
				"flat: vector dimension does not match embedder fingerprint",
				grimerr.FieldChunkID(ec.Chunk.ID),
				grimerr.Field("got", len(ec.Vector)),
				grimerr.Field("want", fp.Dimension),
			)
		}
		ix.chunks = append(ix.chunks, ec.Chunk)
		ix.vectors = append(ix.vectors, ec.Vector)
	}

	if err := b.save(ix); err != nil {
		return nil, err
	}
	return ix, nil
}

// Open reloads the last successfully built snapshot.
func (b *Backend) Open(_ context.Context) (index.Index, error) {
	f, err := os.Open(filepath.Join(b.path, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, grimerr.New(grimerr.CodeIndexUnavailable,
				"flat: no index snapshot found; run ingestion first",
				grimerr.Field("path", b.path))
		}
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "flat: opening snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "flat: decoding snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure,
			"flat: unsupported snapshot version %d", snap.Version)
	}
	if len(snap.Chunks) != len(snap.Vectors) {
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure,
			"flat: snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}

	return &Index{
		fp:      snap.Fingerprint,
		metric:  snap.Metric,
		chunks:  snap.Chunks,
		vectors: snap.Vectors,
	}, nil
}

func (b *Backend) save(ix *Index) error {
	if err := os.MkdirAll(b.path, 0o755); err != nil {
		return grimerr.Errorf(grimerr.CodeIndexSaveFailure, "flat: creating index directory: %w", err)
	}

	final := filepath.Join(b.path, snapshotFile)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeIndexSaveFailure, "flat: creating snapshot file: %w", err)
	}

	snap := snapshot{
		Version:     snapshotVersion,
		Fingerprint: ix.fp,
		Metric:      ix.metric,
		Chunks:      ix.chunks,
		Vectors:     ix.vectors,
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return grimerr.Errorf(grimerr.CodeIndexSaveFailure, "flat: encoding snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return grimerr.Errorf(grimerr.CodeIndexSaveFailure, "flat: closing snapshot file: %w", err)
	}

	// Atomic rename: readers see either the old or the new snapshot.
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return grimerr.Errorf(grimerr.CodeIndexSaveFailure, "flat: replacing snapshot: %w", err)
	}
	return nil
}

// Search scans all stored vectors and returns the k nearest, sorted
// ascending by distance. Ties keep insertion order.
func (ix *Index) Search(_ context.Context, query []float32, k int) ([]index.ScoredChunk, error) {
	if k <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeRetrieveRequestInvalid, "flat: k must be positive, got %d", k)
	}
	if len(ix.chunks) == 0 {
		return []index.ScoredChunk{}, nil
	}
	if len(query) != ix.fp.Dimension {
		return nil, grimerr.New(grimerr.CodeIndexDimensionMismatch,
			"flat: query vector dimension does not match index",
			grimerr.Field("got", len(query)),
			grimerr.Field("want", ix.fp.Dimension),
		)
	}

	results := make([]index.ScoredChunk, len(ix.chunks))
	for i, vec := range ix.vectors {
		results[i] = index.ScoredChunk{
			Chunk:    ix.chunks[i],
			Distance: ix.distance(query, vec),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (ix *Index) Count() int {
	return len(ix.chunks)
}

func (ix *Index) Fingerprint() index.Fingerprint {
	return ix.fp
}

func (ix *Index) Close() error {
	return nil
}

func (ix *Index) distance(a, b []float32) float64 {
	if ix.metric == "cosine" {
		return cosineDistance(a, b)
	}
	return l2Squared(a, b)
}

// l2Squared is the squared Euclidean distance. The square root is omitted
// since it does not change ordering and the relevance threshold is tuned
// against the squared value.
func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// cosineDistance is 1 - cosine similarity, mapped to [0, 2] so that
// smaller still means more similar. Zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
