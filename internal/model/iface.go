package model

import "context"

// TextSource retrieves the raw log text to be parsed.
// Errors are returned as-is so callers can show them to the user.
type TextSource interface {
	Name() string
	Fetch(ctx context.Context) (string, error)
}

// KVStore is the persistence provider the time-series store is handed.
// Values are read and written wholesale; ok is false when key is absent.
type KVStore interface {
	Load(key string) (value string, ok bool, err error)
	Save(key, value string) error
}
