package duckdb

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/cleanstat/internal/model"
)

var _ model.KVStore = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoad_AbsentKey(t *testing.T) {
	store := newTestStore(t)

	v, ok, err := store.Load(model.DefaultStoreKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok || v != "" {
		t.Errorf("Load = %q ok:%v, want absent", v, ok)
	}
}

func TestSave_ReplacesValue(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("logData", `[{"timestamp":"2024-01-01 00:00:00"}]`); err != nil {
		t.Fatalf("Save #1: %v", err)
	}
	if err := store.Save("logData", `[]`); err != nil {
		t.Fatalf("Save #2: %v", err)
	}
	if err := store.Save("other", `x`); err != nil {
		t.Fatalf("Save other: %v", err)
	}

	v, ok, err := store.Load("logData")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if v != "[]" {
		t.Errorf("Load = %q, want []", v)
	}

	var rows int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 2 {
		t.Errorf("kv rows = %d, want 2", rows)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "cleanstat.duckdb")

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save("logData", "[]"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	v, ok, err := reopened.Load("logData")
	if err != nil || !ok || v != "[]" {
		t.Fatalf("Load after reopen = %q ok:%v err:%v", v, ok, err)
	}
}

func TestSnapshot_WritesDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cleanstat.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Save("logData", "[]"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var buf bytes.Buffer
	if err := store.Snapshot(&buf); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("snapshot is empty")
	}
	if store.DBPath() != dbPath {
		t.Errorf("DBPath = %q, want %q", store.DBPath(), dbPath)
	}
}

func TestSnapshot_InMemoryStore(t *testing.T) {
	store := newTestStore(t)

	err := store.Snapshot(&bytes.Buffer{})
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}
