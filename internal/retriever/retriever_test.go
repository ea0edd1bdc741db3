// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package retriever_test

import (
	"context"
	"testing"

	"github.com/grimoire-dev/grimoire/internal/index"
	"github.com/grimoire-dev/grimoire/internal/index/flat"
	"github.com/grimoire-dev/grimoire/internal/retriever"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T) index.Index {
	t.Helper()
	b, err := flat.New(index.Config{Path: t.TempDir(), Metric: "l2"})
	require.NoError(t, err)

	fp := index.Fingerprint{Provider: "test", Model: "unit-3d", Dimension: 3}
	chunks := []index.EmbeddedChunk{
		{Chunk: index.Chunk{ID: "near", Text: "close match"}, Vector: []float32{1, 0, 0}},
		{Chunk: index.Chunk{ID: "mid", Text: "partial match"}, Vector: []float32{0.5, 0.5, 0}},
		{Chunk: index.Chunk{ID: "far", Text: "unrelated"}, Vector: []float32{0, 0, 1}},
	}
	ix, err := b.Build(context.Background(), fp, chunks)
	require.NoError(t, err)
	return ix
}

func TestNewRejectsBadParameters(t *testing.T) {
	_, err := retriever.New(0, 0.7)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeConfigValidateInvalidValue, grimerr.CodeOf(err))

	_, err = retriever.New(3, -0.1)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeConfigValidateInvalidValue, grimerr.CodeOf(err))
}

func TestRetrieveFiltersByThreshold(t *testing.T) {
	ix := buildIndex(t)
	r, err := retriever.New(3, 0.7)
	require.NoError(t, err)

	// Distances from [1,0,0]: near=0, mid=0.5, far=2 (squared L2).
	dec, err := r.Retrieve(context.Background(), ix, []float32{1, 0, 0})
	require.NoError(t, err)

	assert.True(t, dec.Grounded)
	require.Len(t, dec.Passages, 2)
	assert.Equal(t, "near", dec.Passages[0].Chunk.ID)
	assert.Equal(t, "mid", dec.Passages[1].Chunk.ID)
}

func TestRetrieveUngroundedWhenNothingPasses(t *testing.T) {
	ix := buildIndex(t)
	r, err := retriever.New(3, 0.01)
	require.NoError(t, err)

	dec, err := r.Retrieve(context.Background(), ix, []float32{-1, -1, -1})
	require.NoError(t, err)

	assert.False(t, dec.Grounded)
	assert.Empty(t, dec.Passages)
}

func TestRetrieveKeepsAscendingOrder(t *testing.T) {
	ix := buildIndex(t)
	r, err := retriever.New(3, 10)
	require.NoError(t, err)

	dec, err := r.Retrieve(context.Background(), ix, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, dec.Passages, 3)
	for i := 1; i < len(dec.Passages); i++ {
		assert.LessOrEqual(t, dec.Passages[i-1].Distance, dec.Passages[i].Distance)
	}
}

func TestRetrieveLimitsToTopK(t *testing.T) {
	ix := buildIndex(t)
	r, err := retriever.New(1, 10)
	require.NoError(t, err)

	dec, err := r.Retrieve(context.Background(), ix, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, dec.Passages, 1)
	assert.Equal(t, "near", dec.Passages[0].Chunk.ID)
}

func TestRetrieveBoundaryDistanceCountsAsRelevant(t *testing.T) {
	ix := buildIndex(t)
	// mid sits at exactly 0.5 from the query; threshold equal to the
	// distance must include it.
	r, err := retriever.New(3, 0.5)
	require.NoError(t, err)

	dec, err := r.Retrieve(context.Background(), ix, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, dec.Passages, 2)
	assert.Equal(t, "mid", dec.Passages[1].Chunk.ID)
}

func TestRetrieveHigherThresholdNeverReturnsFewer(t *testing.T) {
	ix := buildIndex(t)
	query := []float32{1, 0, 0}

	// Thresholds straddle the chunk distances 0, 0.5, and 2.
	prev := -1
	for _, threshold := range []float64{0.1, 0.5, 0.7, 2, 10} {
		r, err := retriever.New(3, threshold)
		require.NoError(t, err)

		dec, err := r.Retrieve(context.Background(), ix, query)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(dec.Passages), prev, "threshold %g", threshold)
		prev = len(dec.Passages)
	}
}

func TestRetrieveRejectsEmptyQueryVector(t *testing.T) {
	ix := buildIndex(t)
	r, err := retriever.New(3, 0.7)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), ix, nil)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeRetrieveRequestInvalid, grimerr.CodeOf(err))
}

func TestRetrieveEmptyIndexIsUngrounded(t *testing.T) {
	b, err := flat.New(index.Config{Path: t.TempDir(), Metric: "l2"})
	require.NoError(t, err)
	ix, err := b.Build(context.Background(), index.Fingerprint{Provider: "test", Model: "unit-3d", Dimension: 3}, nil)
	require.NoError(t, err)

	r, err := retriever.New(3, 0.7)
	require.NoError(t, err)

	dec, err := r.Retrieve(context.Background(), ix, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, dec.Grounded)
	assert.Empty(t, dec.Passages)
}
