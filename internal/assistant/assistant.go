// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package assistant is the service layer tying retrieval and composition
// together. It owns the live index snapshot: queries read whichever
// snapshot is current, and a rebuild swaps in its replacement only after
// the new index is fully built.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grimoire-dev/grimoire/internal/composer"
	"github.com/grimoire-dev/grimoire/internal/index"
	"github.com/grimoire-dev/grimoire/internal/ingest"
	"github.com/grimoire-dev/grimoire/internal/provider"
	"github.com/grimoire-dev/grimoire/internal/retriever"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Status reports whether the assistant can answer and what it holds.
type Status struct {
	Ready       bool
	Chunks      int
	Fingerprint index.Fingerprint
}

// holder pairs one index snapshot with a reference count. The count
// starts at one for the assistant's own reference; every in-flight
// query holds another, so a swapped-out snapshot stays open until the
// last query using it returns.
type holder struct {
	ix   index.Index
	refs atomic.Int64
}

func newHolder(ix index.Index) *holder {
	h := &holder{ix: ix}
	h.refs.Store(1)
	return h
}

// tryAcquire takes a reference unless the snapshot is already draining.
func (h *holder) tryAcquire() bool {
	for {
		n := h.refs.Load()
		if n == 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops one reference, closing the snapshot when none remain.
func (h *holder) release() error {
	if h.refs.Add(-1) > 0 {
		return nil
	}
	return h.ix.Close()
}

// Assistant serves queries against the current index snapshot.
type Assistant struct {
	embedder  provider.Embedder
	retriever *retriever.Retriever
	composer  *composer.Composer
	pipeline  *ingest.Pipeline
	backend   index.Backend
	log       *slog.Logger

	current   atomic.Pointer[holder]
	rebuildMu sync.Mutex
}

func New(
	embedder provider.Embedder,
	ret *retriever.Retriever,
	comp *composer.Composer,
	pipeline *ingest.Pipeline,
	backend index.Backend,
	log *slog.Logger,
) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{
		embedder:  embedder,
		retriever: ret,
		composer:  comp,
		pipeline:  pipeline,
		backend:   backend,
		log:       log,
	}
}

// Load opens the persisted index snapshot, if any. An unavailable index
// is not fatal at startup; queries will refuse until ingestion runs.
func (a *Assistant) Load(ctx context.Context) error {
	ix, err := a.backend.Open(ctx)
	if err != nil {
		if grimerr.IsUnavailable(err) {
			a.log.Info("no index snapshot yet; run ingestion before querying")
			return nil
		}
		return err
	}

	if err := a.checkFingerprint(ix); err != nil {
		_ = ix.Close()
		return err
	}

	a.swap(ix)
	a.log.Info("index loaded", "chunks", ix.Count(),
		"provider", ix.Fingerprint().Provider, "model", ix.Fingerprint().Model)
	return nil
}

// Query answers one question against the current snapshot. The refusal
// path inside the composer guarantees generation never runs for
// ungrounded questions.
func (a *Assistant) Query(ctx context.Context, question string) (composer.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return composer.Answer{}, grimerr.New(grimerr.CodeRetrieveRequestInvalid,
			"assistant: question is empty")
	}

	h := a.acquire()
	if h == nil {
		return composer.Answer{}, grimerr.New(grimerr.CodeIndexUnavailable,
			"assistant: no index available; run ingestion first")
	}
	defer a.releaseHolder(h)
	ix := h.ix

	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return composer.Answer{}, err
	}

	dec, err := a.retriever.Retrieve(ctx, ix, vec)
	if err != nil {
		return composer.Answer{}, err
	}
	if !dec.Grounded {
		a.log.Debug("query below relevance threshold", "question", question)
	}

	return a.composer.Compose(ctx, question, dec)
}

// Rebuild ingests dir into a fresh index and swaps it in. Concurrent
// rebuilds serialize; queries keep hitting the old snapshot until the
// swap. A failed rebuild leaves the current snapshot untouched.
func (a *Assistant) Rebuild(ctx context.Context, dir string) (ingest.Stats, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	ix, stats, err := a.pipeline.Run(ctx, dir)
	if err != nil {
		return ingest.Stats{}, err
	}

	a.swap(ix)
	return stats, nil
}

// Status reports readiness without touching upstream providers.
func (a *Assistant) Status() Status {
	h := a.acquire()
	if h == nil {
		return Status{}
	}
	defer a.releaseHolder(h)
	return Status{
		Ready:       true,
		Chunks:      h.ix.Count(),
		Fingerprint: h.ix.Fingerprint(),
	}
}

// Close releases the current snapshot.
func (a *Assistant) Close() error {
	h := a.current.Swap(nil)
	if h == nil {
		return nil
	}
	return h.release()
}

// acquire returns the current snapshot with a reference held, or nil
// when no snapshot is loaded. Retries when it races a swap that is
// draining the holder it loaded.
func (a *Assistant) acquire() *holder {
	for {
		h := a.current.Load()
		if h == nil {
			return nil
		}
		if h.tryAcquire() {
			return h
		}
	}
}

func (a *Assistant) releaseHolder(h *holder) {
	if err := h.release(); err != nil {
		a.log.Warn("closing retired index snapshot", "error", err)
	}
}

func (a *Assistant) swap(ix index.Index) {
	old := a.current.Swap(newHolder(ix))
	if old != nil {
		// Queries that captured the old snapshot keep a reference; it
		// closes when the last of them returns.
		a.releaseHolder(old)
	}
}

// checkFingerprint rejects a snapshot built by a different embedder
// configuration: mixing embedding spaces silently corrupts distances.
func (a *Assistant) checkFingerprint(ix index.Index) error {
	want := index.Fingerprint{
		Provider:  a.embedder.Name(),
		Model:     a.embedder.Model(),
		Dimension: a.embedder.Dimension(),
	}
	got := ix.Fingerprint()
	if !got.Matches(want) {
		return grimerr.New(grimerr.CodeIndexFingerprintMismatch,
			"assistant: index was built with a different embedder; re-run ingestion",
			grimerr.Field("index_provider", got.Provider),
			grimerr.Field("index_model", got.Model),
			grimerr.FieldProvider(want.Provider),
			grimerr.FieldModel(want.Model),
		)
	}
	return nil
}
