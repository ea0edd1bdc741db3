// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package retriever applies the relevance gate on top of raw vector
// search. A chunk counts as relevant only when its distance is at or
// under the configured threshold; a query where nothing passes the gate
// is ungrounded and must be refused downstream rather than answered.
package retriever

import (
	"context"

	"github.com/grimoire-dev/grimoire/internal/index"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Decision is the outcome of retrieval for one query.
type Decision struct {
	// Passages are the relevant chunks, ascending by distance. Empty
	// when Grounded is false.
	Passages []index.ScoredChunk
	// Grounded reports whether at least one chunk passed the gate.
	Grounded bool
}

// Retriever searches an index and filters by relevance.
type Retriever struct {
	topK      int
	threshold float64
}

// New validates the retrieval parameters.
func New(topK int, threshold float64) (*Retriever, error) {
	if topK <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"retriever: top_k must be positive, got %d", topK)
	}
	if threshold < 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"retriever: threshold must not be negative, got %g", threshold)
	}
	return &Retriever{topK: topK, threshold: threshold}, nil
}

// Retrieve runs a nearest-neighbor search for the query vector and keeps
// only chunks within the relevance threshold, preserving the ascending
// distance order the index returns.
func (r *Retriever) Retrieve(ctx context.Context, ix index.Index, query []float32) (Decision, error) {
	if len(query) == 0 {
		return Decision{}, grimerr.New(grimerr.CodeRetrieveRequestInvalid,
			"retriever: query vector is empty")
	}

	results, err := ix.Search(ctx, query, r.topK)
	if err != nil {
		return Decision{}, err
	}

	passages := make([]index.ScoredChunk, 0, len(results))
	for _, sc := range results {
		if sc.Distance <= r.threshold {
			passages = append(passages, sc)
		}
	}

	return Decision{Passages: passages, Grounded: len(passages) > 0}, nil
}
