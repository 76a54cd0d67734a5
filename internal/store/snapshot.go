package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"foldermcp/internal/model"
)

// LoadSnapshot returns the last persisted filesystem snapshot, or nil when
// none has been saved yet. The nil/empty distinction matters: nil forces a
// full reindex, empty means the folder was last seen empty.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (map[string]model.FileStat, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	if _, err := s.GetMeta(ctx, "snapshot_saved"); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT rel_path, abs_path, size_bytes, mtime_unix, content_hash FROM snapshot`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make(map[string]model.FileStat)
	for rows.Next() {
		var st model.FileStat
		if err := rows.Scan(&st.RelPath, &st.AbsPath, &st.SizeBytes, &st.MTimeUnix, &st.ContentHash); err != nil {
			return nil, classify(err)
		}
		out[st.RelPath] = st
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// SaveSnapshot atomically replaces the persisted snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, stats map[string]model.FileStat) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot`); err != nil {
		return classify(err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshot(rel_path, abs_path, size_bytes, mtime_unix, content_hash)
VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx, st.RelPath, st.AbsPath,
			st.SizeBytes, st.MTimeUnix, st.ContentHash); err != nil {
			return classify(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO folder_meta(key, value) VALUES('snapshot_saved', '1')
ON CONFLICT(key) DO UPDATE SET value = excluded.value`); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// GetMeta reads one folder_meta value.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	db, err := s.ensureDB()
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM folder_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	return value, nil
}

// SetMeta writes one folder_meta value.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO folder_meta(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return classify(err)
}

// Meta keys the pipeline and endpoints rely on.
const (
	MetaModel     = "embedding_model"
	MetaDimension = "embedding_dimension"
)

// SetEmbeddingModel records which model produced this store's vectors.
func (s *SQLiteStore) SetEmbeddingModel(ctx context.Context, name string, dimension int) error {
	if err := s.SetMeta(ctx, MetaModel, name); err != nil {
		return err
	}
	return s.SetMeta(ctx, MetaDimension, fmt.Sprint(dimension))
}

// EmbeddingModel returns the recorded model name and dimension, or
// ErrNotFound before the first index run.
func (s *SQLiteStore) EmbeddingModel(ctx context.Context) (string, int, error) {
	name, err := s.GetMeta(ctx, MetaModel)
	if err != nil {
		return "", 0, err
	}
	raw, err := s.GetMeta(ctx, MetaDimension)
	if err != nil {
		return "", 0, err
	}
	var dimension int
	if err := json.Unmarshal([]byte(raw), &dimension); err != nil {
		return "", 0, fmt.Errorf("%w: bad embedding_dimension %q", model.ErrInternal, raw)
	}
	return name, dimension, nil
}
