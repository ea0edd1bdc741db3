// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package chunker splits document text into bounded, overlapping pieces
// for embedding. Splitting prefers natural boundaries (paragraphs, then
// lines, then sentences, then words) and falls back to a hard cut only
// when a span has no boundaries at all.
package chunker

import (
	"strings"
	"unicode/utf8"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// separators are tried in order; "" means cut at character boundaries.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker is a deterministic text splitter. Safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New validates the chunking parameters. Overlap must be strictly smaller
// than size or consecutive chunks could never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"chunker: size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"chunker: overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split breaks text into chunks of at most the configured size, with
// consecutive chunks sharing up to overlap characters. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.splitRecursive(text, separators)
}

func (c *Chunker) splitRecursive(text string, seps []string) []string {
	// Pick the first separator that actually occurs in this span.
	sep := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return c.hardCut(text)
	}

	splits := splitKeepSeparator(text, sep)

	var final []string
	var pending []string
	for _, s := range splits {
		if utf8.RuneCountInString(s) < c.size {
			pending = append(pending, s)
			continue
		}
		// Oversized split: flush what we have, then recurse with the
		// finer separators.
		if len(pending) > 0 {
			final = append(final, c.merge(pending)...)
			pending = nil
		}
		final = append(final, c.splitRecursive(s, rest)...)
	}
	if len(pending) > 0 {
		final = append(final, c.merge(pending)...)
	}
	return final
}

// merge packs small splits into chunks up to size, carrying trailing
// splits forward so consecutive chunks overlap by up to the configured
// amount.
func (c *Chunker) merge(splits []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, s := range splits {
		l := utf8.RuneCountInString(s)
		if total+l > c.size && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
				chunks = append(chunks, doc)
			}
			for len(window) > 0 && (total > c.overlap || total+l > c.size) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, s)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

// hardCut slices a boundary-free span into fixed windows stepping by
// size minus overlap. Cuts land on rune boundaries.
func (c *Chunker) hardCut(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		if doc := strings.TrimSpace(string(runes[start:end])); doc != "" {
			chunks = append(chunks, doc)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping the separator attached
// to the end of each piece so rejoining loses nothing.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
