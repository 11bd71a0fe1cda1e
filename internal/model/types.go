package model

// LogRecord holds the cleanup counters reported at one log timestamp.
// It is the canonical type for parsing, persistence and display.
type LogRecord struct {
	Timestamp     string `json:"timestamp"` // "2006-01-02 15:04:05"
	Date          string `json:"date"`      // date portion of Timestamp
	DeletedFiles  int    `json:"deletedFiles"`
	DeletedDirs   int    `json:"deletedDirs"`
	DirtySegments int    `json:"dirtySegments"`
}

// DailyTotals represents the summed counters for one calendar date.
type DailyTotals struct {
	Date          string `json:"date" yaml:"date"`
	DeletedFiles  int    `json:"deletedFiles" yaml:"deletedFiles"`
	DeletedDirs   int    `json:"deletedDirs" yaml:"deletedDirs"`
	DirtySegments int    `json:"dirtySegments" yaml:"dirtySegments"`
}

// Add accumulates the counters of r into t.
func (t *DailyTotals) Add(r LogRecord) {
	t.DeletedFiles += r.DeletedFiles
	t.DeletedDirs += r.DeletedDirs
	t.DirtySegments += r.DirtySegments
}
