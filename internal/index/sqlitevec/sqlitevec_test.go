// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlitevec_test

import (
	"context"
	"testing"

	"github.com/grimoire-dev/grimoire/internal/index"
	"github.com/grimoire-dev/grimoire/internal/index/sqlitevec"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFingerprint() index.Fingerprint {
	return index.Fingerprint{Provider: "test", Model: "unit-3d", Dimension: 3}
}

func testChunks() []index.EmbeddedChunk {
	return []index.EmbeddedChunk{
		{Chunk: index.Chunk{ID: "c1", Text: "alpha", SourcePath: "a.txt", Seq: 0}, Vector: []float32{1, 0, 0}},
		{Chunk: index.Chunk{ID: "c2", Text: "beta", SourcePath: "a.txt", Seq: 1}, Vector: []float32{0, 1, 0}},
		{Chunk: index.Chunk{ID: "c3", Text: "gamma", SourcePath: "b.txt", Seq: 0}, Vector: []float32{0.9, 0.1, 0}},
	}
}

func newBackend(t *testing.T) index.Backend {
	t.Helper()
	b, err := sqlitevec.New(index.Config{Backend: "sqlitevec", Path: t.TempDir(), Metric: "l2"})
	require.NoError(t, err)
	return b
}

func TestBuildAndSearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ix, err := b.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.Equal(t, "c3", results[1].Chunk.ID)
	assert.Equal(t, "c2", results[2].Chunk.ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Less(t, results[1].Distance, results[2].Distance)
}

func TestSearchBoundsKToIndexSize(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ix, err := b.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ix, err := b.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	_, err = ix.Search(ctx, []float32{1, 0, 0}, -1)
	require.Error(t, err)
	assert.True(t, grimerr.IsInvalidInput(err))
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ix, err := b.Build(ctx, testFingerprint(), nil)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, ix.Count())
}

func TestBuildRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	chunks := []index.EmbeddedChunk{
		{Chunk: index.Chunk{ID: "bad"}, Vector: []float32{1, 0}},
	}
	_, err := b.Build(ctx, testFingerprint(), chunks)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeIndexDimensionMismatch, grimerr.CodeOf(err))
}

func TestSearchRejectsQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ix, err := b.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	_, err = ix.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeIndexDimensionMismatch, grimerr.CodeOf(err))
}

func TestBuildAndReopenPreservesState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := index.Config{Backend: "sqlitevec", Path: dir}

	b1, err := sqlitevec.New(cfg)
	require.NoError(t, err)
	built, err := b1.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	require.NoError(t, built.Close())

	// Fresh backend instance, as after a process restart.
	b2, err := sqlitevec.New(cfg)
	require.NoError(t, err)
	loaded, err := b2.Open(ctx)
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()

	assert.True(t, loaded.Fingerprint().Matches(testFingerprint()))
	assert.Equal(t, 3, loaded.Count())

	results, err := loaded.Search(ctx, []float32{0.8, 0.2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c3", results[0].Chunk.ID)
	assert.Equal(t, "a.txt", results[0].Chunk.SourcePath)
}

func TestRebuildReplacesPersistedState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := index.Config{Backend: "sqlitevec", Path: dir}

	b, err := sqlitevec.New(cfg)
	require.NoError(t, err)

	first, err := b.Build(ctx, testFingerprint(), testChunks())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	replacement := []index.EmbeddedChunk{
		{Chunk: index.Chunk{ID: "only", Text: "solo"}, Vector: []float32{0, 0, 1}},
	}
	second, err := b.Build(ctx, testFingerprint(), replacement)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	loaded, err := b.Open(ctx)
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	assert.Equal(t, 1, loaded.Count())

	results, err := loaded.Search(ctx, []float32{0, 0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].Chunk.ID)
}

func TestOpenWithoutDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	_, err := b.Open(ctx)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeIndexUnavailable, grimerr.CodeOf(err))
	assert.True(t, grimerr.IsUnavailable(err))
}

func TestNewRejectsUnsupportedMetric(t *testing.T) {
	_, err := sqlitevec.New(index.Config{Backend: "sqlitevec", Path: t.TempDir(), Metric: "cosine"})
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeConfigValidateInvalidValue, grimerr.CodeOf(err))
}

func TestRegistryResolvesSqlitevecBackend(t *testing.T) {
	b, err := index.NewBackend(index.Config{Backend: "sqlitevec", Path: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, b)
}
