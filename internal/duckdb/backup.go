package duckdb

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInMemoryStore indicates the store uses an in-memory DB and cannot be snapshotted.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// Snapshot checkpoints the database and streams the database file into w.
// The checkpoint runs under the write lock; the copy happens outside it.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.Lock()
	dbPath := s.dbPath
	if dbPath == "" {
		s.mu.Unlock()
		return ErrInMemoryStore
	}
	if _, err := s.db.Exec("CHECKPOINT"); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("duckdb: checkpoint: %w", err)
	}
	s.mu.Unlock()

	src, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("duckdb: open db file: %w", err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("duckdb: copy db file: %w", err)
	}
	return nil
}
