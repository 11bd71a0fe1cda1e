package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/aggregate"
	"github.com/tinytelemetry/cleanstat/internal/logparse"
	"github.com/tinytelemetry/cleanstat/internal/model"
	"github.com/tinytelemetry/cleanstat/internal/series"
)

// ErrNoSource is returned by Refresh when the pipeline has no text source.
var ErrNoSource = errors.New("ingest: no log source configured")

// FetchError reports a text source failure, as opposed to a store failure.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("ingest: fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RefreshResult describes one fetch-parse-merge run.
type RefreshResult struct {
	Source string    `json:"source"`
	Parsed int       `json:"parsed"`
	Stored int       `json:"stored"`
	At     time.Time `json:"at"`
}

// Summary is the presentation view of the store for one date selection.
type Summary struct {
	Date  string              `json:"date,omitempty" yaml:"date,omitempty"`
	Rows  []model.DailyTotals `json:"rows" yaml:"rows"`
	Total model.DailyTotals   `json:"total" yaml:"total"`
	Dates []string            `json:"dates" yaml:"dates"`
}

// Pipeline connects a text source to the time-series store.
//
// The store does no locking of its own, so every operation that reads or
// writes it goes through the pipeline mutex; one refresh runs at a time.
type Pipeline struct {
	mu     sync.Mutex
	source model.TextSource
	store  *series.Store
	now    func() time.Time
	last   RefreshResult
}

// Config holds optional pipeline parameters.
type Config struct {
	Now func() time.Time
}

// NewPipeline creates a pipeline. source may be nil when text only arrives through Ingest.
func NewPipeline(source model.TextSource, store *series.Store, conf ...Config) *Pipeline {
	now := time.Now
	if len(conf) > 0 && conf[0].Now != nil {
		now = conf[0].Now
	}
	return &Pipeline{
		source: source,
		store:  store,
		now:    now,
	}
}

// SourceName returns the configured source name, or "none".
func (p *Pipeline) SourceName() string {
	if p.source == nil {
		return "none"
	}
	return p.source.Name()
}

// Refresh fetches the log text, parses it and merges the records into the store.
// Source failures are returned as *FetchError and are not retried.
func (p *Pipeline) Refresh(ctx context.Context) (RefreshResult, error) {
	if p.source == nil {
		return RefreshResult{}, ErrNoSource
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	text, err := p.source.Fetch(ctx)
	if err != nil {
		return RefreshResult{}, &FetchError{Source: p.source.Name(), Err: err}
	}
	return p.mergeLocked(p.source.Name(), text)
}

// Ingest parses already fetched text and merges it into the store.
func (p *Pipeline) Ingest(source, text string) (RefreshResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mergeLocked(source, text)
}

func (p *Pipeline) mergeLocked(source, text string) (RefreshResult, error) {
	now := p.now()
	records := logparse.Parse(text)

	merged, err := p.store.Merge(records, now)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("ingest: merge: %w", err)
	}

	res := RefreshResult{
		Source: source,
		Parsed: len(records),
		Stored: len(merged),
		At:     now,
	}
	p.last = res
	log.Printf("ingest: merged %d records from %s (%d stored)", res.Parsed, source, res.Stored)
	return res, nil
}

// LastRefresh returns the result of the most recent successful merge.
// The zero value means nothing was merged yet.
func (p *Pipeline) LastRefresh() RefreshResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Records returns every stored record in insertion order.
func (p *Pipeline) Records() ([]model.LogRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.GetAll()
}

// Clear removes every stored record.
func (p *Pipeline) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Clear(); err != nil {
		return err
	}
	log.Printf("ingest: store cleared")
	return nil
}

// Prune applies retention to the stored records.
func (p *Pipeline) Prune(today time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Prune(today)
}

// Summary aggregates the stored records per date. An empty date selects all dates.
func (p *Pipeline) Summary(date string) (Summary, error) {
	records, err := p.Records()
	if err != nil {
		return Summary{}, err
	}
	rows := aggregate.Summarize(records, date)
	return Summary{
		Date:  date,
		Rows:  rows,
		Total: aggregate.Total(rows),
		Dates: aggregate.Dates(records),
	}, nil
}
