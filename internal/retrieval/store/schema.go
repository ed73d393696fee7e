// Package store holds the SQLite-backed retrieval index: an FTS5 virtual
// table for lexical search over insight/distillation text, and an optional
// vec0 virtual table (sqlite-vec extension) for semantic search, with a
// pure-Go fallback when the extension cannot be loaded. Schema layout is
// lifted nearly verbatim from echoryn's memory-core store/schema.go and
// retargeted from file chunks to insight/distillation rows.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	TableMeta          = "meta"
	TableDocs          = "docs"
	TableDocsFTS       = "docs_fts"
	TableDocsVec       = "docs_vec"
	TableEmbeddingCache = "embedding_cache"

	MetaKeyEmbeddingModel = "embedding_model"
)

// VecSchemaConfig controls optional semantic index creation.
type VecSchemaConfig struct {
	Enabled       bool
	Dimensions    int
	ExtensionPath string
}

// SchemaResult reports which optional indexes came up.
type SchemaResult struct {
	FTSAvailable bool
	FTSError     string
	VecAvailable bool
	VecError     string
}

// Open opens the index database in WAL mode, matching echoryn's memory-core
// connection string.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open retrieval index: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureSchema creates the docs table plus optional FTS5/vec0 indexes.
func EnsureSchema(db *sql.DB, ftsEnabled bool, vecConfig *VecSchemaConfig) (*SchemaResult, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + TableMeta + ` (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + TableDocs + ` (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			reliability REAL NOT NULL DEFAULT 0.5,
			category TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_kind ON ` + TableDocs + `(kind)`,
		`CREATE TABLE IF NOT EXISTS ` + TableEmbeddingCache + ` (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			embedding TEXT NOT NULL,
			dims INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("exec schema: %w", err)
		}
	}

	result := &SchemaResult{}
	if ftsEnabled {
		ftsSQL := `CREATE VIRTUAL TABLE IF NOT EXISTS ` + TableDocsFTS + ` USING fts5(
			text,
			id UNINDEXED,
			kind UNINDEXED
		)`
		if _, err := db.Exec(ftsSQL); err != nil {
			result.FTSError = err.Error()
		} else {
			result.FTSAvailable = true
		}
	}

	if vecConfig != nil && vecConfig.Enabled && vecConfig.Dimensions > 0 {
		if vecConfig.ExtensionPath != "" {
			_, _ = db.Exec("SELECT load_extension(?)", vecConfig.ExtensionPath)
		}
		vecSQL := fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(doc_id TEXT PRIMARY KEY, embedding float[%d])`,
			TableDocsVec, vecConfig.Dimensions)
		if _, err := db.Exec(vecSQL); err != nil {
			result.VecError = err.Error()
		} else {
			result.VecAvailable = true
		}
	}

	return result, nil
}
