package series

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/model"
)

// ErrCorruptStore indicates the persisted blob exists but is not a JSON record array.
var ErrCorruptStore = errors.New("series: persisted store is not a valid record list")

// Store is the rolling time-series collection persisted as one JSON blob
// under a single key of the injected provider. It holds no state of its own
// and does no locking; callers serialize mutations.
type Store struct {
	kv  model.KVStore
	key string
}

// NewStore creates a store over kv. An empty key selects model.DefaultStoreKey.
func NewStore(kv model.KVStore, key string) *Store {
	if strings.TrimSpace(key) == "" {
		key = model.DefaultStoreKey
	}
	return &Store{kv: kv, key: key}
}

// Key returns the provider key the blob is stored under.
func (s *Store) Key() string {
	return s.key
}

// GetAll returns the persisted records in insertion order.
// An absent or empty blob yields an empty slice.
func (s *Store) GetAll() ([]model.LogRecord, error) {
	raw, ok, err := s.kv.Load(s.key)
	if err != nil {
		return nil, fmt.Errorf("series: load %q: %w", s.key, err)
	}
	if !ok {
		return []model.LogRecord{}, nil
	}
	return decode(raw)
}

// Merge loads the current state, merges incoming into it relative to today
// and saves the result, which replaces the previous state wholesale.
func (s *Store) Merge(incoming []model.LogRecord, today time.Time) ([]model.LogRecord, error) {
	existing, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	merged := Merge(existing, incoming, today)
	if err := s.save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Prune applies retention without merging anything and reports how many
// records were removed. Nothing is written when no record expired.
func (s *Store) Prune(today time.Time) (int, error) {
	existing, err := s.GetAll()
	if err != nil {
		return 0, err
	}
	kept := Prune(existing, today)
	removed := len(existing) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear removes every record.
func (s *Store) Clear() error {
	return s.save([]model.LogRecord{})
}

func (s *Store) save(records []model.LogRecord) error {
	raw, err := encode(records)
	if err != nil {
		return err
	}
	if err := s.kv.Save(s.key, raw); err != nil {
		return fmt.Errorf("series: save %q: %w", s.key, err)
	}
	return nil
}

func encode(records []model.LogRecord) (string, error) {
	if records == nil {
		records = []model.LogRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("series: marshal records: %w", err)
	}
	return string(data), nil
}

func decode(raw string) ([]model.LogRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return []model.LogRecord{}, nil
	}
	var records []model.LogRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if records == nil {
		records = []model.LogRecord{}
	}
	return records, nil
}
