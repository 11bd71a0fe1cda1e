package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
	err    error
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) Snapshot(w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write(f.data)
	return err
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestNewManager_Disabled(t *testing.T) {
	t.Parallel()

	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", data: []byte("x")}, Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func TestNewManager_EnabledRequiresDBPath(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&fakeSnapshotter{dbPath: "", data: []byte("x")}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestNewManager_EnabledRequiresLocalDir(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb"}, Config{Enabled: true})
	if err == nil {
		t.Fatal("expected error for empty local dir")
	}
}

func TestNewManager_StartupSnapshot(t *testing.T) {
	t.Parallel()

	localDir := filepath.Join(t.TempDir(), "backups")
	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", data: []byte("snap")}, Config{
		Enabled:  true,
		Interval: time.Hour,
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Stop()

	files, err := List(localDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("snapshots after startup = %d, want 1", len(files))
	}
}

func TestRunOnce_CreatesAndPrunesLocalBackups(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	m := newManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", data: []byte("snapshot")}, Config{
		Enabled:  true,
		LocalDir: localDir,
		KeepLast: 2,
	})
	m.now = steppingClock()

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := m.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
		paths = append(paths, p)
	}

	files, err := List(localDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("backup files = %d, want 2", len(files))
	}
	if files[0] != paths[2] || files[1] != paths[1] {
		t.Errorf("kept = %v, want the two newest %v", files, paths[1:])
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Errorf("oldest snapshot should be pruned, stat err = %v", err)
	}
}

func TestRunOnce_CompressedRoundTrip(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("DUCK"), 4096)
	m := newManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", data: data}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
		KeepLast: 5,
		Compress: true,
	})
	m.now = steppingClock()

	path, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !strings.HasSuffix(path, ".duckdb.zst") {
		t.Fatalf("path = %q, want .duckdb.zst suffix", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() >= int64(len(data)) {
		t.Errorf("compressed size %d not smaller than %d", info.Size(), len(data))
	}

	var out bytes.Buffer
	if err := Restore(path, &out); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Error("restored snapshot differs from source")
	}
}

func TestRunOnce_SnapshotErrorLeavesNoFile(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	boom := errors.New("checkpoint failed")
	m := newManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", err: boom}, Config{
		Enabled:  true,
		LocalDir: localDir,
		KeepLast: 2,
	})

	if _, err := m.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("local dir has %d entries after failed snapshot", len(entries))
	}
}

func TestRestore_Uncompressed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cleanstat-20240110-120000.000000000.duckdb")
	if err := os.WriteFile(path, []byte("raw"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := Restore(path, &out); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if out.String() != "raw" {
		t.Errorf("Restore = %q, want raw", out.String())
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	m := newManager(&fakeSnapshotter{dbPath: "/tmp/cleanstat.duckdb", data: []byte("s")}, Config{
		Enabled:  true,
		Interval: 5 * time.Millisecond,
		LocalDir: t.TempDir(),
		KeepLast: 2,
	})
	m.wg.Add(1)
	go m.loop()

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if _, err := m.RunOnce(m.ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce after Stop err = %v, want context.Canceled", err)
	}
}
