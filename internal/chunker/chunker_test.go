// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/grimoire-dev/grimoire/internal/chunker"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -10, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chunker.New(tc.size, tc.overlap)
			require.Error(t, err)
			assert.Equal(t, grimerr.CodeConfigValidateInvalidValue, grimerr.CodeOf(err))
		})
	}
}

func TestSplitEmptyInputYieldsNoChunks(t *testing.T) {
	c, err := chunker.New(500, 50)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n  \t"))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c, err := chunker.New(500, 50)
	require.NoError(t, err)

	chunks := c.Split("The capital of France is Paris.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "The capital of France is Paris.", chunks[0])
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	c, err := chunker.New(40, 0)
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."
	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	// No chunk straddles a paragraph break.
	for _, ch := range chunks {
		assert.NotContains(t, ch, "\n\n")
	}
	assert.Equal(t, "First paragraph here.", chunks[0])
}

func TestSplitRespectsSizeBound(t *testing.T) {
	c, err := chunker.New(100, 20)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	chunks := c.Split(sb.String())
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 100)
	}
}

func TestSplitOverlapSharesText(t *testing.T) {
	c, err := chunker.New(60, 25)
	require.NoError(t, err)

	text := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu. Nu xi omicron pi. Rho sigma tau upsilon."
	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	// Each chunk after the first starts with text already seen.
	joinedSoFar := chunks[0]
	for _, ch := range chunks[1:] {
		head := ch
		if utf8.RuneCountInString(head) > 25 {
			head = string([]rune(head)[:25])
		}
		firstWord := strings.Fields(head)[0]
		assert.Contains(t, joinedSoFar, firstWord)
		joinedSoFar += ch
	}
}

func TestSplitHardCutsBoundaryFreeText(t *testing.T) {
	c, err := chunker.New(10, 2)
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("x", 25))
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 10)
	}
	// All input characters are covered.
	assert.Equal(t, "xxxxxxxxxx", chunks[0])
	total := 0
	for _, ch := range chunks {
		total += utf8.RuneCountInString(ch)
	}
	assert.GreaterOrEqual(t, total, 25)
}

func TestSplitHardCutKeepsRunesIntact(t *testing.T) {
	c, err := chunker.New(4, 1)
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("héllo", 3))
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch))
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	c, err := chunker.New(80, 10)
	require.NoError(t, err)

	text := "One sentence here. Another sentence there.\n\nA second paragraph with more words in it. And a final thought."
	first := c.Split(text)
	second := c.Split(text)
	assert.Equal(t, first, second)
}

func TestSplitPreservesContentOrder(t *testing.T) {
	c, err := chunker.New(30, 0)
	require.NoError(t, err)

	text := "aaa bbb ccc. ddd eee fff. ggg hhh iii. jjj kkk lll."
	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	posA := strings.Index(strings.Join(chunks, "|"), "aaa")
	posJ := strings.Index(strings.Join(chunks, "|"), "jjj")
	assert.Less(t, posA, posJ)
}
