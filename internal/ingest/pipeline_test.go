package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/kv"
	"github.com/tinytelemetry/cleanstat/internal/logsource"
	"github.com/tinytelemetry/cleanstat/internal/model"
	"github.com/tinytelemetry/cleanstat/internal/series"
)

type staticSource struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Fetch(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, s.err
}

func (s *staticSource) set(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

func fixedNow(date string) func() time.Time {
	return func() time.Time {
		t, _ := time.ParseInLocation(model.DateLayout, date, time.Local)
		return t.Add(12 * time.Hour)
	}
}

func newTestPipeline(t *testing.T, src model.TextSource, today string) *Pipeline {
	t.Helper()
	store := series.NewStore(kv.NewMemoryStore(), "")
	return NewPipeline(src, store, Config{Now: fixedNow(today)})
}

func TestRefresh_GrowingLogIsNotDoubleCounted(t *testing.T) {
	src := &staticSource{text: "2024-01-10 09:00:00 已删除文件数: 3\n"}
	p := newTestPipeline(t, src, "2024-01-10")

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh #1: %v", err)
	}

	// The daemon appended a new block; the old block is re-read with the file.
	src.set("2024-01-10 09:00:00 已删除文件数: 3\n2024-01-10 10:00:00 已删除文件数: 4\n")
	res, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh #2: %v", err)
	}
	if res.Parsed != 2 || res.Stored != 2 || res.Source != "static" {
		t.Errorf("result = %+v", res)
	}

	sum, err := p.Summary("")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Rows) != 1 || sum.Rows[0].DeletedFiles != 7 {
		t.Fatalf("rows = %+v, want one row with DeletedFiles=7", sum.Rows)
	}
	if p.LastRefresh().Parsed != 2 {
		t.Errorf("LastRefresh = %+v", p.LastRefresh())
	}
}

func TestRefresh_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("cat: log.txt: No such file or directory")
	p := newTestPipeline(t, &staticSource{err: boom}, "2024-01-10")

	_, err := p.Refresh(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped source error", err)
	}
	if !strings.Contains(err.Error(), boom.Error()) {
		t.Errorf("error text %q lost the source message", err)
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Source != "static" {
		t.Errorf("err = %#v, want *FetchError from static", err)
	}
	if !p.LastRefresh().At.IsZero() {
		t.Error("failed refresh must not update LastRefresh")
	}
}

func TestRefresh_StoreErrorIsNotFetchError(t *testing.T) {
	mem := kv.NewMemoryStore()
	if err := mem.Save(model.DefaultStoreKey, "{not json"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	src := &staticSource{text: "2024-01-10 09:00:00 已删除文件数: 3"}
	p := NewPipeline(src, series.NewStore(mem, ""), Config{Now: fixedNow("2024-01-10")})

	_, err := p.Refresh(context.Background())
	if !errors.Is(err, series.ErrCorruptStore) {
		t.Fatalf("err = %v, want ErrCorruptStore", err)
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		t.Errorf("store failure reported as fetch failure: %v", err)
	}
}

func TestRefresh_NoSource(t *testing.T) {
	p := newTestPipeline(t, nil, "2024-01-10")
	if _, err := p.Refresh(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("err = %v, want ErrNoSource", err)
	}
	if p.SourceName() != "none" {
		t.Errorf("SourceName = %q, want none", p.SourceName())
	}
}

func TestIngest_ClearAndSummary(t *testing.T) {
	p := newTestPipeline(t, nil, "2024-01-10")

	text := strings.Join([]string{
		"2024-01-09 09:00:00 已删除文件数: 1",
		"2024-01-09 09:00:00 已删除目录数: 2",
		"2024-01-10 09:00:00 已回收 5 个脏段",
		"2024-01-02 09:00:00 已删除文件数: 100",
	}, "\n")
	res, err := p.Ingest("stdin", text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Parsed != 3 || res.Stored != 2 {
		t.Errorf("result = %+v, want parsed=3 stored=2 (one record outside the window)", res)
	}

	sum, err := p.Summary("2024-01-09")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Rows) != 1 || sum.Rows[0].DeletedFiles != 1 || sum.Rows[0].DeletedDirs != 2 {
		t.Errorf("rows = %+v", sum.Rows)
	}
	if len(sum.Dates) != 2 || sum.Dates[0] != "2024-01-09" || sum.Dates[1] != "2024-01-10" {
		t.Errorf("dates = %v", sum.Dates)
	}

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	records, err := p.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Records after Clear = %+v", records)
	}
}

func TestPrune_UsesStore(t *testing.T) {
	p := newTestPipeline(t, nil, "2024-01-10")
	if _, err := p.Ingest("test", "2024-01-04 09:00:00 已删除文件数: 1"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	removed, err := p.Prune(fixedNow("2024-01-11")())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestRefresh_ConcurrentCallsAreSerialized(t *testing.T) {
	src := &staticSource{text: "2024-01-10 09:00:00 已删除文件数: 3"}
	p := newTestPipeline(t, src, "2024-01-10")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := p.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 || records[0].DeletedFiles != 3 {
		t.Fatalf("records = %+v", records)
	}
}

func TestPipeline_FileSourceToFileStore(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(logPath, []byte("2024-01-10 08:00:00 已删除文件数: 2\n2024-01-10 08:00:00 已删除目录数: 1\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	fs, err := kv.NewFileStore(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	p := NewPipeline(logsource.NewFileSource(logPath), series.NewStore(fs, ""), Config{Now: fixedNow("2024-01-10")})
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A new pipeline over the same directory sees the persisted state.
	p2 := NewPipeline(nil, series.NewStore(fs, ""), Config{Now: fixedNow("2024-01-10")})
	sum, err := p2.Summary("")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Rows) != 1 || sum.Total.DeletedFiles != 2 || sum.Total.DeletedDirs != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
