package series

import (
	"time"

	"github.com/tinytelemetry/cleanstat/internal/model"
)

// Merge folds incoming into existing and applies retention relative to today.
//
// A record in incoming whose timestamp is already stored overwrites the
// stored counters instead of adding to them: the source log only grows, so
// re-parsing it yields totals for timestamps that were merged before.
// New timestamps are appended in incoming order. existing is not modified.
func Merge(existing, incoming []model.LogRecord, today time.Time) []model.LogRecord {
	merged := make([]model.LogRecord, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, rec := range merged {
		if _, ok := index[rec.Timestamp]; !ok {
			index[rec.Timestamp] = i
		}
	}

	for _, rec := range incoming {
		if i, ok := index[rec.Timestamp]; ok {
			merged[i].DeletedFiles = rec.DeletedFiles
			merged[i].DeletedDirs = rec.DeletedDirs
			merged[i].DirtySegments = rec.DirtySegments
			continue
		}
		index[rec.Timestamp] = len(merged)
		merged = append(merged, rec)
	}

	return Prune(merged, today)
}

// Cutoff returns the oldest calendar date kept when the current date is today.
func Cutoff(today time.Time) time.Time {
	y, m, d := today.Date()
	return time.Date(y, m, d-(model.RetentionDays-1), 0, 0, 0, 0, time.UTC)
}

// Prune drops records dated before Cutoff(today), preserving order.
// Records whose date cannot be parsed are dropped as well.
func Prune(records []model.LogRecord, today time.Time) []model.LogRecord {
	cutoff := Cutoff(today)
	kept := make([]model.LogRecord, 0, len(records))
	for _, rec := range records {
		d, err := time.Parse(model.DateLayout, rec.Date)
		if err != nil || d.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}
