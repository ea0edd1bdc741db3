// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package google implements embedding and generation against the Google
// Gemini API.
package google

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/grimoire-dev/grimoire/internal/provider"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultGenerationModel = "gemini-2.5-flash"
	embeddingDimension     = 3072
)

func init() {
	provider.RegisterEmbedder("google", func(cfg provider.Config) (provider.Embedder, error) {
		return NewEmbedder(cfg)
	})
	provider.RegisterGenerator("google", func(cfg provider.Config) (provider.Generator, error) {
		return NewGenerator(cfg)
	})
}

func newClient(cfg provider.Config) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"google: missing api_key in config")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, grimerr.Wrap(err, grimerr.CodeProviderRequestInvalid,
			"google: creating client", grimerr.FieldProvider("google"))
	}
	return client, nil
}

// Embedder produces vectors through the Gemini embedding models.
type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder creates a Gemini embedder. Returns an error if the API key
// is missing.
func NewEmbedder(cfg provider.Config) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Name() string   { return "google" }
func (e *Embedder) Model() string  { return e.model }
func (e *Embedder) Dimension() int { return embeddingDimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, grimerr.Wrap(err, grimerr.CodeEmbeddingUpstreamFailure,
			"google: embedding request failed",
			grimerr.FieldProvider("google"), grimerr.FieldModel(e.model))
	}
	if len(res.Embeddings) != len(texts) {
		return nil, grimerr.Errorf(grimerr.CodeEmbeddingUpstreamFailure,
			"google: expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}

// Generator produces completions through the Gemini API.
type Generator struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGenerator creates a Gemini generator. Returns an error if the API
// key is missing.
func NewGenerator(cfg provider.Config) (*Generator, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGenerationModel
	}
	return &Generator{client: client, model: model, maxTokens: cfg.MaxTokens}, nil
}

func (g *Generator) Name() string  { return "google" }
func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if g.maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(g.maxTokens)}
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		code := grimerr.CodeGenerationUpstreamFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = grimerr.CodeGenerationTimeout
		}
		return "", grimerr.Wrap(err, code, "google: generation request failed",
			grimerr.FieldProvider("google"), grimerr.FieldModel(g.model))
	}

	text := res.Text()
	if text == "" {
		return "", grimerr.New(grimerr.CodeGenerationUpstreamFailure,
			"google: generation returned no text",
			grimerr.FieldProvider("google"), grimerr.FieldModel(g.model))
	}
	return text, nil
}
