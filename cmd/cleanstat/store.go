package main

import (
	"fmt"
	"log"

	"github.com/tinytelemetry/cleanstat/internal/duckdb"
	"github.com/tinytelemetry/cleanstat/internal/kv"
	"github.com/tinytelemetry/cleanstat/internal/logsource"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

// openedStore is the configured persistence provider.
// db is set only for the duckdb backend.
type openedStore struct {
	kv model.KVStore
	db *duckdb.Store
}

func (s *openedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func openStore(cfg appConfig) (*openedStore, error) {
	switch cfg.StoreBackend {
	case backendMemory:
		log.Printf("store: using in-memory backend, records are lost on exit")
		return &openedStore{kv: kv.NewMemoryStore()}, nil

	case backendDuckDB:
		db, err := duckdb.NewStore(cfg.StorePath, cfg.QueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		return &openedStore{kv: db, db: db}, nil

	default:
		fs, err := kv.NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		return &openedStore{kv: fs}, nil
	}
}

// newSource builds the log source. A configured command wins over the file path.
func newSource(cfg appConfig) (model.TextSource, error) {
	if cfg.SourceCommand != "" {
		src, err := logsource.NewCommandSource(cfg.SourceCommand)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	if cfg.SourcePath == "" {
		return nil, nil
	}
	return logsource.NewFileSource(cfg.SourcePath), nil
}
