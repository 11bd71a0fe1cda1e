package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "cleanstat-"
	fileExt    = ".duckdb"
	zstdExt    = ".zst"

	// nanosecond suffix keeps names unique and lexically chronological
	stampLayout = "20060102-150405.000000000"
)

// Config controls periodic store backups.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int
	Compress bool
}

// Snapshotter is the minimal snapshot contract used by Manager.
type Snapshotter interface {
	DBPath() string
	Snapshot(w io.Writer) error
}

// Manager runs periodic local snapshots of the store.
type Manager struct {
	store Snapshotter
	cfg   Config
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager initializes the backup manager. It returns nil when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	m := newManager(store, cfg)

	// Startup snapshot to reduce recovery point after restarts.
	if _, err := m.RunOnce(m.ctx); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func newManager(store Snapshotter, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.RunOnce(m.ctx); err != nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce writes one local snapshot and prunes old local copies.
// It returns the path of the new snapshot.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filePrefix + m.now().UTC().Format(stampLayout) + fileExt
	if m.cfg.Compress {
		name += zstdExt
	}
	localPath := filepath.Join(m.cfg.LocalDir, name)

	if err := m.writeSnapshot(localPath); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", localPath)

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return localPath, fmt.Errorf("prune local backups: %w", err)
	}
	return localPath, nil
}

func (m *Manager) writeSnapshot(dstPath string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if m.cfg.Compress {
		enc, encErr := zstd.NewWriter(tmp)
		if encErr != nil {
			return encErr
		}
		if err = m.store.Snapshot(enc); err != nil {
			enc.Close()
			return err
		}
		if err = enc.Close(); err != nil {
			return err
		}
	} else if err = m.store.Snapshot(tmp); err != nil {
		return err
	}

	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dstPath)
}

// Stop terminates the periodic backup loop. It is safe to call more than once.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.cancel()
		close(m.done)
		m.wg.Wait()
	})
}

// Restore writes the snapshot at path into w, decompressing zstd snapshots.
func Restore(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("backup: open zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	if _, err := io.Copy(w, r); err != nil {
		if errors.Is(err, zstd.ErrMagicMismatch) {
			return fmt.Errorf("backup: %s is not a zstd snapshot: %w", filepath.Base(path), err)
		}
		return err
	}
	return nil
}

// List returns local snapshot paths, newest first.
func List(localDir string) ([]string, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		if !strings.HasSuffix(name, fileExt) && !strings.HasSuffix(name, fileExt+zstdExt) {
			continue
		}
		out = append(out, filepath.Join(localDir, name))
	}
	sort.Slice(out, func(i, j int) bool {
		// timestamp is embedded in filename and lexical sort matches chronology
		return out[i] > out[j]
	})
	return out, nil
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := List(localDir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
