// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package sqlitevec implements the vector index on SQLite with the
// sqlite-vec extension. The database file is the durable form; distance
// is sqlite-vec's Euclidean (L2) metric, so relevance thresholds must be
// tuned per backend.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/grimoire-dev/grimoire/internal/index"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const dbFile = "index.db"

func init() {
	sqlite_vec.Auto()
	index.RegisterBackend("sqlitevec", New)
}

// Backend builds and reloads sqlite-vec index files under a directory.
type Backend struct {
	path string
}

// New creates a sqlitevec Backend rooted at cfg.Path. The metric is fixed
// by sqlite-vec; cfg.Metric other than "l2" is rejected.
func New(cfg index.Config) (index.Backend, error) {
	if cfg.Path == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "sqlitevec: index path is required")
	}
	if cfg.Metric != "" && cfg.Metric != "l2" {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"sqlitevec: unsupported metric %q (backend only supports l2)", cfg.Metric)
	}
	return &Backend{path: cfg.Path}, nil
}

// Compile-time interface check.
var _ index.Index = (*Index)(nil)

// Index is a read-only view over a fully built sqlite-vec database.
type Index struct {
	db    *sql.DB
	fp    index.Fingerprint
	count int
}

// Build writes a complete new database next to the live one and renames
// it into place only after a successful commit, so in-flight readers of
// the previous file are never exposed to partial state.
func (b *Backend) Build(ctx context.Context, fp index.Fingerprint, chunks []index.EmbeddedChunk) (index.Index, error) {
	if fp.Dimension <= 0 && len(chunks) > 0 {
		return nil, grimerr.Errorf(grimerr.CodeIndexBuildFailure,
			"sqlitevec: fingerprint dimension must be positive, got %d", fp.Dimension)
	}

	if err := os.MkdirAll(b.path, 0o755); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: creating index directory: %w", err)
	}

	final := filepath.Join(b.path, dbFile)
	tmp := final + ".building"
	_ = os.Remove(tmp)

	if err := b.writeDatabase(ctx, tmp, fp, chunks); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: replacing index file: %w", err)
	}

	return b.Open(ctx)
}

func (b *Backend) writeDatabase(ctx context.Context, path string, fp index.Fingerprint, chunks []index.EmbeddedChunk) error {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=DELETE&_busy_timeout=5000")
	if err != nil {
		return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: opening build db: %w", err)
	}
	defer func() { _ = db.Close() }()

	dim := fp.Dimension
	if dim <= 0 {
		dim = 1 // vec0 requires a dimension even for an empty index
	}
	if err := migrate(db, dim); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for ordinal, ec := range chunks {
		if len(ec.Vector) != fp.Dimension {
			return grimerr.New(grimerr.CodeIndexDimensionMismatch,
				"sqlitevec: vector dimension does not match embedder fingerprint",
				grimerr.FieldChunkID(ec.Chunk.ID),
				grimerr.Field("got", len(ec.Vector)),
				grimerr.Field("want", fp.Dimension),
			)
		}

		blob, err := sqlite_vec.SerializeFloat32(ec.Vector)
		if err != nil {
			return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: serializing vector %s: %w", ec.Chunk.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_vectors(ordinal, embedding) VALUES (?, ?)`, ordinal, blob); err != nil {
			return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: inserting vector %s: %w", ec.Chunk.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(ordinal, id, source_path, text, seq) VALUES (?, ?, ?, ?, ?)`,
			ordinal, ec.Chunk.ID, ec.Chunk.SourcePath, ec.Chunk.Text, ec.Chunk.Seq); err != nil {
			return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: inserting chunk %s: %w", ec.Chunk.ID, err)
		}
	}

	manifest := map[string]string{
		"provider":  fp.Provider,
		"model":     fp.Model,
		"dimension": strconv.Itoa(fp.Dimension),
	}
	for key, val := range manifest {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manifest(key, value) VALUES (?, ?)`, key, val); err != nil {
			return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: writing manifest %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: committing build: %w", err)
	}
	return nil
}

func migrate(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(ordinal INTEGER PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: creating vector table: %w", err)
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS chunks (
	ordinal     INTEGER PRIMARY KEY,
	id          TEXT NOT NULL,
	source_path TEXT NOT NULL,
	text        TEXT NOT NULL,
	seq         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.Exec(metaDDL); err != nil {
		return grimerr.Errorf(grimerr.CodeIndexBuildFailure, "sqlitevec: creating metadata tables: %w", err)
	}

	return nil
}

// Open reloads the last successfully built index file.
func (b *Backend) Open(ctx context.Context) (index.Index, error) {
	path := filepath.Join(b.path, dbFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, grimerr.New(grimerr.CodeIndexUnavailable,
				"sqlitevec: no index database found; run ingestion first",
				grimerr.Field("path", b.path))
		}
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: checking index file: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: opening index db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: pinging index db: %w", err)
	}

	fp, err := readManifest(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		_ = db.Close()
		return nil, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: counting chunks: %w", err)
	}

	return &Index{db: db, fp: fp, count: count}, nil
}

func readManifest(ctx context.Context, db *sql.DB) (index.Fingerprint, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return index.Fingerprint{}, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: reading manifest: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fp index.Fingerprint
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return index.Fingerprint{}, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: scanning manifest: %w", err)
		}
		switch key {
		case "provider":
			fp.Provider = value
		case "model":
			fp.Model = value
		case "dimension":
			dim, err := strconv.Atoi(value)
			if err != nil {
				return index.Fingerprint{}, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: parsing manifest dimension: %w", err)
			}
			fp.Dimension = dim
		}
	}
	if err := rows.Err(); err != nil {
		return index.Fingerprint{}, grimerr.Errorf(grimerr.CodeIndexLoadFailure, "sqlitevec: iterating manifest: %w", err)
	}

	return fp, nil
}

// Search performs a k-nearest-neighbor query through the vec0 virtual
// table. Equal distances order by ordinal, which is insertion order.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]index.ScoredChunk, error) {
	if k <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeRetrieveRequestInvalid, "sqlitevec: k must be positive, got %d", k)
	}
	if ix.count == 0 {
		return []index.ScoredChunk{}, nil
	}
	if len(query) != ix.fp.Dimension {
		return nil, grimerr.New(grimerr.CodeIndexDimensionMismatch,
			"sqlitevec: query vector dimension does not match index",
			grimerr.Field("got", len(query)),
			grimerr.Field("want", ix.fp.Dimension),
		)
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexSearchFailure, "sqlitevec: serializing query vector: %w", err)
	}

	const q = `SELECT v.distance, c.id, c.source_path, c.text, c.seq
FROM chunk_vectors v
JOIN chunks c ON c.ordinal = v.ordinal
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance, v.ordinal`

	rows, err := ix.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexSearchFailure, "sqlitevec: searching vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]index.ScoredChunk, 0, k)
	for rows.Next() {
		var sc index.ScoredChunk
		if err := rows.Scan(&sc.Distance, &sc.Chunk.ID, &sc.Chunk.SourcePath, &sc.Chunk.Text, &sc.Chunk.Seq); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeIndexSearchFailure, "sqlitevec: scanning result: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeIndexSearchFailure, "sqlitevec: iterating results: %w", err)
	}

	return results, nil
}

func (ix *Index) Count() int {
	return ix.count
}

func (ix *Index) Fingerprint() index.Fingerprint {
	return ix.fp
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}
