// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package anthropic implements generation against the Anthropic Messages
// API. Anthropic exposes no embeddings endpoint, so only a generator is
// registered.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/grimoire-dev/grimoire/internal/provider"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	DefaultGenerationModel = "claude-haiku-4-5"
	defaultMaxTokens       = 1024
)

func init() {
	provider.RegisterGenerator("anthropic", func(cfg provider.Config) (provider.Generator, error) {
		return NewGenerator(cfg)
	})
}

// Generator produces completions through the Anthropic Messages API.
type Generator struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int
}

// NewGenerator creates an Anthropic generator. Returns an error if the
// API key is missing.
func NewGenerator(cfg provider.Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"anthropic: missing api_key in config")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGenerationModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Generator{
		client:    anthropicsdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (g *Generator) Name() string  { return "anthropic" }
func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		code := grimerr.CodeGenerationUpstreamFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = grimerr.CodeGenerationTimeout
		}
		return "", grimerr.Wrap(err, code, "anthropic: message request failed",
			grimerr.FieldProvider("anthropic"), grimerr.FieldModel(g.model))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", grimerr.New(grimerr.CodeGenerationUpstreamFailure,
			"anthropic: message contained no text blocks",
			grimerr.FieldProvider("anthropic"), grimerr.FieldModel(g.model))
	}
	return sb.String(), nil
}
