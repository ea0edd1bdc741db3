// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grimoire-dev/grimoire/internal/assistant"
	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/composer"
	"github.com/grimoire-dev/grimoire/internal/document"
	"github.com/grimoire-dev/grimoire/internal/index"
	"github.com/grimoire-dev/grimoire/internal/index/flat"
	"github.com/grimoire-dev/grimoire/internal/ingest"
	"github.com/grimoire-dev/grimoire/internal/retriever"
	"github.com/grimoire-dev/grimoire/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type topicEmbedder struct{}

func (topicEmbedder) vector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "france") {
		return []float32{1, 0, 0}
	}
	return []float32{0, 0, 1}
}

func (e topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e topicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = e.vector(t)
	}
	return vecs, nil
}

func (topicEmbedder) Dimension() int { return 3 }
func (topicEmbedder) Model() string  { return "fake-3d" }
func (topicEmbedder) Name() string   { return "fake" }

type cannedGenerator struct{}

func (cannedGenerator) Generate(_ context.Context, _ string) (string, error) {
	return "Paris.", nil
}

func (cannedGenerator) Model() string { return "fake-gen" }
func (cannedGenerator) Name() string  { return "fake" }

const refusal = "I don't know based on the knowledge base."

// newTestServer wires a full assistant over a temp knowledge base.
func newTestServer(t *testing.T, dataDir string) *httptest.Server {
	t.Helper()

	backend, err := flat.New(index.Config{Path: t.TempDir(), Metric: "l2"})
	require.NoError(t, err)
	split, err := chunker.New(200, 20)
	require.NoError(t, err)
	ret, err := retriever.New(3, 0.7)
	require.NoError(t, err)
	comp, err := composer.New(cannedGenerator{}, composer.Config{
		Template: "Context:\n{context}\n\nQuestion: {question}\nAnswer:",
		Refusal:  refusal,
	})
	require.NoError(t, err)

	emb := topicEmbedder{}
	pipeline := ingest.New(document.NewLoader(nil), split, emb, backend, nil)
	a := assistant.New(emb, ret, comp, pipeline, backend, nil)

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		DataDir:    dataDir,
	}, a, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func writeKB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "france.txt"),
		[]byte("The capital of France is Paris."), 0o600))
	return dir
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res
}

func decode(t *testing.T, res *http.Response, v any) {
	t.Helper()
	defer func() { _ = res.Body.Close() }()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	decode(t, res, &body)
	assert.Equal(t, "ok", body.Status)
}

func TestStatusReflectsIngestState(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	var status struct {
		Ready  bool `json:"ready"`
		Chunks int  `json:"chunks"`
	}

	res, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	decode(t, res, &status)
	assert.False(t, status.Ready)

	res = postJSON(t, ts.URL+"/api/v1/ingest", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()

	res, err = http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	decode(t, res, &status)
	assert.True(t, status.Ready)
	assert.Greater(t, status.Chunks, 0)
}

func TestQueryBeforeIngestIsUnavailable(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res := postJSON(t, ts.URL+"/api/v1/query", `{"question":"What is the capital of France?"}`)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestQueryAnswersGroundedQuestion(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res := postJSON(t, ts.URL+"/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()

	res = postJSON(t, ts.URL+"/api/v1/query", `{"question":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Answer   string `json:"answer"`
		Grounded bool   `json:"grounded"`
		Sources  []struct {
			SourcePath string `json:"source_path"`
		} `json:"sources"`
	}
	decode(t, res, &body)
	assert.Equal(t, "Paris.", body.Answer)
	assert.True(t, body.Grounded)
	require.NotEmpty(t, body.Sources)
	assert.Equal(t, "france.txt", body.Sources[0].SourcePath)
}

func TestQueryRefusesOffTopicQuestion(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res := postJSON(t, ts.URL+"/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()

	res = postJSON(t, ts.URL+"/api/v1/query", `{"question":"What is the melting point of tungsten?"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Answer   string `json:"answer"`
		Grounded bool   `json:"grounded"`
		Sources  []any  `json:"sources"`
	}
	decode(t, res, &body)
	assert.Equal(t, refusal, body.Answer)
	assert.False(t, body.Grounded)
	assert.Empty(t, body.Sources)
}

func TestQueryRejectsBlankQuestion(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res := postJSON(t, ts.URL+"/api/v1/query", `{"question":"   "}`)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestIngestReportsCounts(t *testing.T) {
	ts := newTestServer(t, writeKB(t))

	res := postJSON(t, ts.URL+"/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Documents int `json:"documents"`
		Chunks    int `json:"chunks"`
	}
	decode(t, res, &body)
	assert.Equal(t, 1, body.Documents)
	assert.Greater(t, body.Chunks, 0)
}

func TestIngestEmptyDirectoryFails(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	res := postJSON(t, ts.URL+"/api/v1/ingest", "")
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
