package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"foldermcp/internal/model"
)

// GetDocumentOutline reads the outline recorded when the document was
// committed. One row, no chunk scan, and never a re-parse of the source file.
func (s *SQLiteStore) GetDocumentOutline(ctx context.Context, id string) (model.Outline, error) {
	db, err := s.ensureDB()
	if err != nil {
		return model.Outline{}, err
	}

	var raw string
	var size int64
	err = db.QueryRowContext(ctx,
		`SELECT outline, size_bytes FROM documents WHERE id = ?`, id).Scan(&raw, &size)
	if err != nil {
		return model.Outline{}, classify(err)
	}
	if raw == "" {
		// Document exists but was never committed with an outline.
		return model.Outline{Kind: model.OutlineText, FileSize: size}, nil
	}

	var outline model.Outline
	if err := json.Unmarshal([]byte(raw), &outline); err != nil {
		return model.Outline{}, fmt.Errorf("%w: document %s outline: %v", model.ErrInternal, id, err)
	}
	outline.FileSize = size
	return outline, nil
}

// SetDocumentOutline records the document's outline without touching its
// status. CommitDocument is the usual writer; this exists for repair paths.
func (s *SQLiteStore) SetDocumentOutline(ctx context.Context, id string, outline model.Outline) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE documents SET outline = ?, updated_unix = ? WHERE id = ?`,
		string(raw), time.Now().Unix(), id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
