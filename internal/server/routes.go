// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "assistant-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Assistant status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/api/v1/query",
		Summary:     "Ask the knowledge base a question",
		Tags:        []string{"assistant"},
	}, s.handleQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "ingest",
		Method:      http.MethodPost,
		Path:        "/api/v1/ingest",
		Summary:     "Rebuild the index from the knowledge-base directory",
		Tags:        []string{"assistant"},
	}, s.handleIngest)
}

// --- Request/Response types for huma ---

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

type statusOutput struct {
	Body struct {
		Ready     bool   `json:"ready" doc:"Whether an index is loaded"`
		Chunks    int    `json:"chunks" doc:"Number of indexed chunks"`
		Provider  string `json:"provider,omitempty" doc:"Embedding provider the index was built with"`
		Model     string `json:"model,omitempty" doc:"Embedding model the index was built with"`
		Dimension int    `json:"dimension,omitempty" doc:"Embedding vector width"`
	}
}

type queryInput struct {
	Body struct {
		Question string `json:"question" minLength:"1" maxLength:"4000" doc:"Question to answer from the knowledge base"`
	}
}

type querySource struct {
	SourcePath   string  `json:"source_path" doc:"Knowledge-base file the passage came from"`
	ChunkPreview string  `json:"chunk_preview" doc:"Leading text of the supporting passage"`
	Distance     float64 `json:"distance" doc:"Vector distance, smaller is closer"`
}

type queryOutput struct {
	Body struct {
		Answer   string        `json:"answer" doc:"Answer text, or the refusal"`
		Grounded bool          `json:"grounded" doc:"Whether the answer is backed by retrieved passages"`
		Sources  []querySource `json:"sources" doc:"Supporting passages, closest first"`
	}
}

type ingestOutput struct {
	Body struct {
		Documents  int    `json:"documents" doc:"Documents ingested"`
		Chunks     int    `json:"chunks" doc:"Chunks indexed"`
		DurationMS int64  `json:"duration_ms" doc:"Wall-clock ingestion time"`
		DataDir    string `json:"data_dir" doc:"Directory that was ingested"`
	}
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	return out, nil
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	st := s.assistant.Status()
	out := &statusOutput{}
	out.Body.Ready = st.Ready
	out.Body.Chunks = st.Chunks
	out.Body.Provider = st.Fingerprint.Provider
	out.Body.Model = st.Fingerprint.Model
	out.Body.Dimension = st.Fingerprint.Dimension
	return out, nil
}

func (s *Server) handleQuery(ctx context.Context, input *queryInput) (*queryOutput, error) {
	question := strings.TrimSpace(input.Body.Question)
	if question == "" {
		return nil, huma.Error400BadRequest("question must not be empty")
	}

	ans, err := s.assistant.Query(ctx, question)
	if err != nil {
		s.log.Error("query failed", "error", err)
		return nil, mapError(err)
	}

	out := &queryOutput{}
	out.Body.Answer = ans.Text
	out.Body.Grounded = ans.Grounded
	out.Body.Sources = make([]querySource, len(ans.Sources))
	for i, src := range ans.Sources {
		out.Body.Sources[i] = querySource{
			SourcePath:   src.SourcePath,
			ChunkPreview: src.ChunkPreview,
			Distance:     src.Distance,
		}
	}
	return out, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *struct{}) (*ingestOutput, error) {
	stats, err := s.assistant.Rebuild(ctx, s.cfg.DataDir)
	if err != nil {
		s.log.Error("ingest failed", "error", err, "dir", s.cfg.DataDir)
		return nil, mapError(err)
	}

	out := &ingestOutput{}
	out.Body.Documents = stats.Documents
	out.Body.Chunks = stats.Chunks
	out.Body.DurationMS = stats.Duration.Milliseconds()
	out.Body.DataDir = s.cfg.DataDir
	return out, nil
}

// mapError converts internal error codes into huma status errors without
// leaking wrapped detail to clients.
func mapError(err error) error {
	msg := string(grimerr.CodeOf(err))
	if msg == "" {
		msg = "internal error"
	}
	switch grimerr.HTTPStatus(err) {
	case http.StatusBadRequest:
		return huma.Error400BadRequest(msg)
	case http.StatusNotFound:
		return huma.Error404NotFound(msg)
	case http.StatusServiceUnavailable:
		return huma.Error503ServiceUnavailable(msg)
	case http.StatusGatewayTimeout:
		return huma.Error504GatewayTimeout(msg)
	case http.StatusBadGateway:
		return huma.Error502BadGateway(msg)
	default:
		return huma.Error500InternalServerError(msg)
	}
}
