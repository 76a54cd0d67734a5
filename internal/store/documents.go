package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"foldermcp/internal/model"
)

const documentColumns = `id, rel_path, abs_path, content_hash, size_bytes,
	mtime_unix, parser_type, status, created_unix, updated_unix`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	var status string
	err := row.Scan(&d.ID, &d.RelPath, &d.AbsPath, &d.ContentHash, &d.SizeBytes,
		&d.MTimeUnix, &d.ParserType, &status, &d.CreatedUnix, &d.UpdatedUnix)
	if err != nil {
		return model.Document{}, classify(err)
	}
	d.Status = model.DocStatus(status)
	return d, nil
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc model.Document) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if doc.ID == "" || doc.RelPath == "" {
		return fmt.Errorf("%w: document id and rel_path are required", model.ErrInvalidInput)
	}
	now := time.Now().Unix()
	if doc.CreatedUnix == 0 {
		doc.CreatedUnix = now
	}
	status := doc.Status
	if status == "" {
		status = model.DocPending
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO documents(id, rel_path, abs_path, content_hash, size_bytes,
                      mtime_unix, parser_type, status, created_unix, updated_unix)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  rel_path=excluded.rel_path,
  abs_path=excluded.abs_path,
  content_hash=excluded.content_hash,
  size_bytes=excluded.size_bytes,
  mtime_unix=excluded.mtime_unix,
  parser_type=excluded.parser_type,
  status=excluded.status,
  updated_unix=excluded.updated_unix`,
		doc.ID, doc.RelPath, doc.AbsPath, doc.ContentHash, doc.SizeBytes,
		doc.MTimeUnix, doc.ParserType, string(status), doc.CreatedUnix, now)
	return classify(err)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (model.Document, error) {
	db, err := s.ensureDB()
	if err != nil {
		return model.Document{}, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, relPath string) (model.Document, error) {
	db, err := s.ensureDB()
	if err != nil {
		return model.Document{}, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE rel_path = ?`, relPath)
	return scanDocument(row)
}

// ListDocuments returns one page ordered by rel_path plus the total count.
func (s *SQLiteStore) ListDocuments(ctx context.Context, limit, offset int) ([]model.Document, int64, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY rel_path LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err)
	}
	return docs, total, nil
}

// DeleteDocument removes the document; chunks and embeddings cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkDocumentStatus(ctx context.Context, id string, status model.DocStatus) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_unix = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// UpsertChunks atomically replaces the document's chunk set. Embeddings of
// removed chunks cascade away; re-inserted chunks with unchanged ids keep
// nothing and are re-embedded by the caller.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, docID string, chunks []model.Chunk) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceChunksTx(ctx, tx, docID, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// replaceChunksTx swaps the document's chunk set inside the caller's
// transaction. Embeddings of removed chunks cascade away.
func replaceChunksTx(ctx context.Context, tx *sql.Tx, docID string, chunks []model.Chunk) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return classify(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks(id, document_id, ordinal, text, token_count, content_hash, location, semantic)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if ch.DocumentID != docID {
			return fmt.Errorf("%w: chunk %s belongs to document %s, not %s",
				model.ErrInvalidInput, ch.ID, ch.DocumentID, docID)
		}
		loc, err := json.Marshal(ch.Location)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrInternal, err)
		}
		sem, err := json.Marshal(ch.Semantic)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrInternal, err)
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.Ordinal,
			ch.Text, ch.TokenCount, ch.ContentHash, string(loc), string(sem)); err != nil {
			return classify(err)
		}
	}
	return nil
}

// IterateChunks returns the document's chunks ordered by ordinal.
func (s *SQLiteStore) IterateChunks(ctx context.Context, docID string, limit, offset int) ([]model.Chunk, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, document_id, ordinal, text, token_count, content_hash, location, semantic
FROM chunks WHERE document_id = ? ORDER BY ordinal LIMIT ? OFFSET ?`,
		docID, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func scanChunk(rows *sql.Rows) (model.Chunk, error) {
	var ch model.Chunk
	var loc, sem string
	if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Ordinal, &ch.Text,
		&ch.TokenCount, &ch.ContentHash, &loc, &sem); err != nil {
		return model.Chunk{}, classify(err)
	}
	if err := unmarshalLocation(loc, &ch.Location); err != nil {
		return model.Chunk{}, fmt.Errorf("chunk %s: %w", ch.ID, err)
	}
	if err := json.Unmarshal([]byte(sem), &ch.Semantic); err != nil {
		return model.Chunk{}, fmt.Errorf("%w: chunk %s semantic: %v", model.ErrInternal, ch.ID, err)
	}
	return ch, nil
}

// unmarshalLocation decodes a stored location column. An empty column reads
// as the zero location.
func unmarshalLocation(raw string, into *model.Location) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("%w: location: %v", model.ErrInternal, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertEmbeddings(ctx context.Context, rowsIn []model.Embedding) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertEmbeddingsTx(ctx, tx, rowsIn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func upsertEmbeddingsTx(ctx context.Context, tx *sql.Tx, rowsIn []model.Embedding) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO embeddings(chunk_id, model, dimension, vector)
VALUES(?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
  model=excluded.model,
  dimension=excluded.dimension,
  vector=excluded.vector`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for _, e := range rowsIn {
		if e.Dimension != len(e.Vector) {
			return fmt.Errorf("%w: embedding %s dimension %d does not match vector length %d",
				model.ErrInvalidInput, e.ChunkID, e.Dimension, len(e.Vector))
		}
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.Model, e.Dimension,
			encodeVector(e.Vector)); err != nil {
			return classify(err)
		}
	}
	return nil
}

// CommitDocument publishes one indexed document in a single transaction: the
// chunk set is replaced, embeddings written, the outline recorded, and the
// document marked ready. Readers never observe a ready document whose chunks
// and embeddings disagree.
func (s *SQLiteStore) CommitDocument(ctx context.Context, docID string, chunks []model.Chunk, embeddings []model.Embedding, outline model.Outline) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceChunksTx(ctx, tx, docID, chunks); err != nil {
		return err
	}
	if err := upsertEmbeddingsTx(ctx, tx, embeddings); err != nil {
		return err
	}
	raw, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ?, outline = ?, updated_unix = ? WHERE id = ?`,
		string(model.DocReady), string(raw), time.Now().Unix(), docID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *SQLiteStore) AggregateStatus(ctx context.Context) (model.AggregateStatus, error) {
	db, err := s.ensureDB()
	if err != nil {
		return model.AggregateStatus{}, err
	}
	var agg model.AggregateStatus
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = 'ready' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM documents`).Scan(&agg.Total, &agg.Ready, &agg.Failed)
	if err != nil {
		return model.AggregateStatus{}, classify(err)
	}
	agg.Pending = agg.Total - agg.Ready - agg.Failed
	return agg, nil
}
