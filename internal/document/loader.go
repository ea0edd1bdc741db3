// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package document loads source files from the knowledge-base directory.
// Supported formats are plain text (.txt, .md) and PDF. Unreadable files
// are logged and skipped; an empty collection is an error because the
// assistant cannot answer from nothing.
package document

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Document is the raw text of one source file.
type Document struct {
	// Path is relative to the scanned root, using forward slashes.
	Path string
	Text string
}

// Loader reads documents from a directory tree.
type Loader struct {
	log *slog.Logger
}

func NewLoader(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{log: log}
}

// LoadDir walks dir and returns every readable supported document,
// sorted by path for deterministic ingestion. Files that fail to read
// or yield no text are logged and skipped; only a fully empty result is
// an error.
func (l *Loader) LoadDir(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeDocumentLoadFailure, "document: reading directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, grimerr.Errorf(grimerr.CodeDocumentLoadFailure, "document: %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supported(ext) {
			l.log.Debug("skipping unsupported file", "path", path, "ext", ext)
			return nil
		}

		text, err := l.extract(path, ext)
		if err != nil {
			l.log.Warn("skipping unreadable document", "path", path, "error", err)
			return nil
		}
		if strings.TrimSpace(text) == "" {
			l.log.Warn("skipping document with no extractable text", "path", path)
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, Document{Path: filepath.ToSlash(rel), Text: text})
		return nil
	})
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeDocumentLoadFailure, "document: walking %s: %w", dir, err)
	}

	if len(docs) == 0 {
		return nil, grimerr.New(grimerr.CodeDocumentNoneFound,
			"document: no supported documents found",
			grimerr.Field("dir", dir))
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func supported(ext string) bool {
	switch ext {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

func (l *Loader) extract(path, ext string) (string, error) {
	if ext == ".pdf" {
		return extractPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", grimerr.Errorf(grimerr.CodeDocumentFormatUnsupported, "document: opening pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	body, err := rdr.GetPlainText()
	if err != nil {
		return "", grimerr.Errorf(grimerr.CodeDocumentLoadFailure, "document: extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", grimerr.Errorf(grimerr.CodeDocumentLoadFailure, "document: reading pdf text: %w", err)
	}
	return buf.String(), nil
}
