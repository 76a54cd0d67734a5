package store

import (
	"context"
	"database/sql"
	"time"
)

// migrations run in order inside one transaction per missing version. The
// slice is append-only; editing an applied entry corrupts existing stores.
var migrations = []string{
	// 1: base schema
	`
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  rel_path TEXT NOT NULL UNIQUE,
  abs_path TEXT NOT NULL DEFAULT '',
  content_hash TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  mtime_unix INTEGER NOT NULL DEFAULT 0,
  parser_type TEXT NOT NULL DEFAULT 'text',
  status TEXT NOT NULL DEFAULT 'pending',
  created_unix INTEGER NOT NULL DEFAULT 0,
  updated_unix INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  text TEXT NOT NULL,
  token_count INTEGER NOT NULL DEFAULT 0,
  content_hash TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '{}',
  semantic TEXT NOT NULL DEFAULT '{}',
  UNIQUE(document_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, ordinal);

CREATE TABLE IF NOT EXISTS embeddings (
  chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
  model TEXT NOT NULL,
  dimension INTEGER NOT NULL,
  vector BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS folder_meta (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot (
  rel_path TEXT PRIMARY KEY,
  abs_path TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  mtime_unix INTEGER NOT NULL DEFAULT 0,
  content_hash TEXT NOT NULL DEFAULT ''
);
`,
	// 2: precomputed outline, written when a document is committed
	`ALTER TABLE documents ADD COLUMN outline TEXT NOT NULL DEFAULT '';`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_unix INTEGER NOT NULL
);`); err != nil {
		return classify(err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return classify(err)
	}

	for version := current + 1; version <= len(migrations); version++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, migrations[version-1]); err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations(version, applied_unix) VALUES(?, ?)`,
			version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
		if err := tx.Commit(); err != nil {
			return classify(err)
		}
	}
	return nil
}
