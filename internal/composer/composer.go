// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package composer turns a retrieval decision into a final answer. The
// refusal path never touches the generator: an ungrounded query is
// answered with the configured refusal text and nothing else.
package composer

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/grimoire-dev/grimoire/internal/provider"
	"github.com/grimoire-dev/grimoire/internal/retriever"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	placeholderContext  = "{context}"
	placeholderQuestion = "{question}"
	passageSeparator    = "\n\n---\n\n"
	previewRunes        = 200
)

// stopMarkers cut off model output that starts hallucinating a new turn.
var stopMarkers = []string{"\nQuestion:", "\nQ:", "\nUser:"}

// Source identifies where an answer's supporting text came from.
type Source struct {
	SourcePath   string
	ChunkPreview string
	Distance     float64
}

// Answer is the assistant's reply to one question.
type Answer struct {
	Text     string
	Sources  []Source
	Grounded bool
}

// Config parameterises the composer.
type Config struct {
	// Template must contain the {context} and {question} placeholders.
	Template string
	// Refusal is returned verbatim for ungrounded queries.
	Refusal string
	// Timeout bounds a single generation call. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Composer renders prompts and invokes the generator.
type Composer struct {
	gen      provider.Generator
	template string
	refusal  string
	timeout  time.Duration
}

// New validates the prompt configuration.
func New(gen provider.Generator, cfg Config) (*Composer, error) {
	if gen == nil {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "composer: generator is required")
	}
	if cfg.Refusal == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "composer: refusal text is required")
	}
	if !strings.Contains(cfg.Template, placeholderContext) || !strings.Contains(cfg.Template, placeholderQuestion) {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"composer: template must contain %s and %s", placeholderContext, placeholderQuestion)
	}

	return &Composer{
		gen:      gen,
		template: cfg.Template,
		refusal:  cfg.Refusal,
		timeout:  cfg.Timeout,
	}, nil
}

// Compose produces the answer for a question given its retrieval
// decision. Ungrounded decisions short-circuit to the refusal. On
// generation failure the returned answer still carries the sources, so
// callers can report what was retrieved.
func (c *Composer) Compose(ctx context.Context, question string, dec retriever.Decision) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, grimerr.New(grimerr.CodeRetrieveRequestInvalid, "composer: question is empty")
	}

	if !dec.Grounded {
		return Answer{Text: c.refusal, Sources: []Source{}, Grounded: false}, nil
	}

	sources := make([]Source, len(dec.Passages))
	contexts := make([]string, len(dec.Passages))
	for i, p := range dec.Passages {
		contexts[i] = p.Chunk.Text
		sources[i] = Source{
			SourcePath:   p.Chunk.SourcePath,
			ChunkPreview: preview(p.Chunk.Text),
			Distance:     p.Distance,
		}
	}

	prompt := strings.NewReplacer(
		placeholderContext, strings.Join(contexts, passageSeparator),
		placeholderQuestion, question,
	).Replace(c.template)

	genCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.gen.Generate(genCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !grimerr.IsTimeout(err) {
			err = grimerr.Wrap(err, grimerr.CodeGenerationTimeout,
				"composer: generation timed out")
		}
		return Answer{Sources: sources, Grounded: true}, err
	}

	return Answer{Text: clean(raw), Sources: sources, Grounded: true}, nil
}

// Refusal returns the configured refusal text.
func (c *Composer) Refusal() string {
	return c.refusal
}

// clean trims the completion at the first hallucinated turn marker and
// strips surrounding whitespace.
func clean(text string) string {
	for _, marker := range stopMarkers {
		if i := strings.Index(text, marker); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}
