// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package openai implements embedding and generation against the OpenAI
// API.
package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/grimoire-dev/grimoire/internal/provider"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultGenerationModel = "gpt-4.1-mini"
)

// embeddingDimensions maps known embedding models to their native vector
// width.
var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

func init() {
	provider.RegisterEmbedder("openai", func(cfg provider.Config) (provider.Embedder, error) {
		return NewEmbedder(cfg)
	})
	provider.RegisterGenerator("openai", func(cfg provider.Config) (provider.Generator, error) {
		return NewGenerator(cfg)
	})
}

func newClient(cfg provider.Config) (openaisdk.Client, error) {
	if cfg.APIKey == "" {
		return openaisdk.Client{}, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"openai: missing api_key in config")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openaisdk.NewClient(opts...), nil
}

// Embedder produces vectors through the OpenAI embeddings endpoint.
type Embedder struct {
	client    openaisdk.Client
	model     string
	dimension int
}

// NewEmbedder creates an OpenAI embedder. Returns an error if the API
// key is missing or the model's dimension is unknown.
func NewEmbedder(cfg provider.Config) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dim, ok := embeddingDimensions[model]
	if !ok {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"openai: unknown embedding model %q", model)
	}

	return &Embedder{client: client, model: model, dimension: dim}, nil
}

func (e *Embedder) Name() string   { return "openai" }
func (e *Embedder) Model() string  { return e.model }
func (e *Embedder) Dimension() int { return e.dimension }

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

	res, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, grimerr.Wrap(err, grimerr.CodeEmbeddingUpstreamFailure,
			"openai: embedding request failed",
			grimerr.FieldProvider("openai"), grimerr.FieldModel(e.model))
	}
	if len(res.Data) != len(texts) {
		return nil, grimerr.Errorf(grimerr.CodeEmbeddingUpstreamFailure,
			"openai: expected %d embeddings, got %d", len(texts), len(res.Data))
	}

	// The API tags each embedding with its input index.
	vecs := make([][]float32, len(texts))
	for _, d := range res.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, grimerr.Errorf(grimerr.CodeEmbeddingUpstreamFailure,
				"openai: embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[d.Index] = vec
	}
	return vecs, nil
}

// Generator produces completions through the OpenAI chat endpoint.
type Generator struct {
	client    openaisdk.Client
	model     string
	maxTokens int
}

// NewGenerator creates an OpenAI generator. Returns an error if the API
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

func (g *Generator) Name() string  { return "openai" }
func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.maxTokens))
	}

	res, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		code := grimerr.CodeGenerationUpstreamFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = grimerr.CodeGenerationTimeout
		}
		return "", grimerr.Wrap(err, code, "openai: completion request failed",
			grimerr.FieldProvider("openai"), grimerr.FieldModel(g.model))
	}
	if len(res.Choices) == 0 {
		return "", grimerr.New(grimerr.CodeGenerationUpstreamFailure,
			"openai: completion returned no choices",
			grimerr.FieldProvider("openai"), grimerr.FieldModel(g.model))
	}
	return res.Choices[0].Message.Content, nil
}
