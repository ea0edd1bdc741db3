// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package ingest runs the load, chunk, embed, build pipeline. A failure
// at any stage aborts before Build, so the previously persisted index is
// never touched by a partial run.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/document"
	"github.com/grimoire-dev/grimoire/internal/index"
	"github.com/grimoire-dev/grimoire/internal/provider"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// embedBatchSize bounds the number of texts per upstream request.
const embedBatchSize = 64

// Stats summarises one completed ingestion run.
type Stats struct {
	Documents int
	Chunks    int
	Duration  time.Duration
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	loader   *document.Loader
	splitter *chunker.Chunker
	embedder provider.Embedder
	backend  index.Backend
	log      *slog.Logger
}

func New(loader *document.Loader, splitter *chunker.Chunker, embedder provider.Embedder, backend index.Backend, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		backend:  backend,
		log:      log,
	}
}

// Run ingests every supported document under dir and builds a fresh
// index, returning the ready snapshot.
func (p *Pipeline) Run(ctx context.Context, dir string) (index.Index, Stats, error) {
	start := time.Now()

	docs, err := p.loader.LoadDir(dir)
	if err != nil {
		return nil, Stats{}, err
	}
	p.log.Info("loaded documents", "dir", dir, "count", len(docs))

	var chunks []index.Chunk
	for _, doc := range docs {
		pieces := p.splitter.Split(doc.Text)
		for seq, text := range pieces {
			chunks = append(chunks, index.Chunk{
				ID:         uuid.NewString(),
				Text:       text,
				SourcePath: doc.Path,
				Seq:        seq,
			})
		}
		p.log.Debug("chunked document", "path", doc.Path, "chunks", len(pieces))
	}
	if len(chunks) == 0 {
		return nil, Stats{}, grimerr.New(grimerr.CodeDocumentNoneFound,
			"ingest: documents contained no chunkable text",
			grimerr.Field("dir", dir))
	}
	p.log.Info("chunked documents", "chunks", len(chunks))

	embedded, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, Stats{}, err
	}

	fp := index.Fingerprint{
		Provider:  p.embedder.Name(),
		Model:     p.embedder.Model(),
		Dimension: p.embedder.Dimension(),
	}
	ix, err := p.backend.Build(ctx, fp, embedded)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		Documents: len(docs),
		Chunks:    len(chunks),
		Duration:  time.Since(start),
	}
	p.log.Info("index built",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"duration", stats.Duration,
		"provider", fp.Provider,
		"model", fp.Model,
	)
	return ix, stats, nil
}

func (p *Pipeline) embedAll(ctx context.Context, chunks []index.Chunk) ([]index.EmbeddedChunk, error) {
	embedded := make([]index.EmbeddedChunk, 0, len(chunks))

	for offset := 0; offset < len(chunks); offset += embedBatchSize {
		end := offset + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, grimerr.Wrapf(err, grimerr.CodeEmbeddingUpstreamFailure,
				"ingest: embedding batch at offset %d", offset)
		}
		if len(vecs) != len(batch) {
			return nil, grimerr.Errorf(grimerr.CodeEmbeddingUpstreamFailure,
				"ingest: embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}

		for i, c := range batch {
			embedded = append(embedded, index.EmbeddedChunk{Chunk: c, Vector: vecs[i]})
		}
	}

	return embedded, nil
}
