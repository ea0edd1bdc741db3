// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package document_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grimoire-dev/grimoire/internal/document"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDirReadsTextAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "capitals.txt", "The capital of France is Paris.")
	writeFile(t, dir, "notes.md", "# Notes\n\nGo was released in 2009.")

	docs, err := document.NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Sorted by path.
	assert.Equal(t, "capitals.txt", docs[0].Path)
	assert.Equal(t, "notes.md", docs[1].Path)
	assert.Contains(t, docs[0].Text, "Paris")
}

func TestLoadDirRecursesAndUsesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("sub", "deep.txt"), "nested content")

	docs, err := document.NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "sub/deep.txt", docs[0].Path)
}

func TestLoadDirSkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "kept")
	writeFile(t, dir, "image.png", "\x89PNG")
	writeFile(t, dir, "data.json", `{"a":1}`)

	docs, err := document.NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.txt", docs[0].Path)
}

func TestLoadDirSkipsEmptyDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "blank.txt", "   \n\n ")
	writeFile(t, dir, "real.txt", "content")

	docs, err := document.NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "real.txt", docs[0].Path)
}

func TestLoadDirSkipsCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.pdf", "not actually a pdf")
	writeFile(t, dir, "ok.txt", "still fine")

	docs, err := document.NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ok.txt", docs[0].Path)
}

func TestLoadDirEmptyCollectionFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ignored.bin", "xx")

	_, err := document.NewLoader(nil).LoadDir(dir)
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeDocumentNoneFound, grimerr.CodeOf(err))
	assert.True(t, grimerr.IsNotFound(err))
}

func TestLoadDirMissingDirectoryFails(t *testing.T) {
	_, err := document.NewLoader(nil).LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, grimerr.CodeDocumentLoadFailure, grimerr.CodeOf(err))
}
