// Package store persists documents, chunks, and embedding vectors for one
// monitored folder in a single SQLite database under the folder's state
// directory. The store is the only writer of its files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"foldermcp/internal/model"
)

// DBFileName is the database file inside a folder's state directory.
const DBFileName = "index.db"

// DBPath returns the database path for a state directory.
func DBPath(stateDir string) string {
	return filepath.Join(stateDir, DBFileName)
}

type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database, applies the session pragmas, and runs pending
// migrations. It is idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return classify(err)
	}

	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return classify(err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) ensureDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("%w: store not initialized", model.ErrStoreUnavailable)
	}
	return s.db, nil
}

// Checkpoint forces the WAL into the main database file.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		return classify(err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. After Close the state
// directory holds no open handles and can be removed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`)
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps driver errors onto the store's two failure classes so callers
// can decide between retrying and failing the folder.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %v", model.ErrStoreBusy, err)
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}
