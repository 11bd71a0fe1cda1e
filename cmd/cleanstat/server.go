package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/cleanstat/internal/backup"
	"github.com/tinytelemetry/cleanstat/internal/httpserver"
	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/series"
	"github.com/tinytelemetry/cleanstat/internal/socketrpc"
	"github.com/tinytelemetry/cleanstat/internal/tcpserver"
	"golang.org/x/sync/errgroup"
)

// runServer starts the periodic refresher with the HTTP API and dashboard socket.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	source, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize log source: %w", err)
	}

	pipeline := ingest.NewPipeline(source, series.NewStore(store.kv, cfg.StoreKey))

	// Retention runs through the pipeline so it never races a refresh.
	retentionCleaner := series.NewRetentionCleaner(pipeline, series.RetentionConfig{
		Interval: cfg.RetentionCheckInterval,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	// Start periodic backups when enabled.
	if cfg.BackupEnabled && store.db == nil {
		log.Printf("backup: disabled, snapshots need the duckdb backend (store-backend=%s)", cfg.StoreBackend)
		cfg.BackupEnabled = false
	}
	if cfg.BackupEnabled {
		backupManager, err := backup.NewManager(store.db, backup.Config{
			Enabled:  true,
			Interval: cfg.BackupInterval,
			LocalDir: cfg.BackupLocalDir,
			KeepLast: cfg.BackupKeepLast,
			Compress: cfg.BackupCompress,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize backups: %w", err)
		}
		defer backupManager.Stop()
	}

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, pipeline)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start TCP push ingest if enabled
	if cfg.TCPEnabled {
		tcpServer := tcpserver.NewServer(cfg.TCPAddr, pipeline)
		if err := tcpServer.Start(); err != nil {
			return fmt.Errorf("failed to start TCP server: %w", err)
		}
		defer tcpServer.Stop()
	}

	// Start socket RPC server for the dashboard
	sockServer := socketrpc.NewServer(cfg.SocketPath, pipeline)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, pipeline.SourceName())

	g, gctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			runRefresher(gctx, pipeline, cfg.RefreshInterval)
			return nil
		})
	}

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

// refresher is the pipeline operation driven by runRefresher.
type refresher interface {
	Refresh(ctx context.Context) (ingest.RefreshResult, error)
}

// runRefresher refreshes once at startup and then every interval until ctx
// is done. Failures are logged and retried on the next tick only.
// An interval of 0 performs the startup refresh only.
func runRefresher(ctx context.Context, p refresher, interval time.Duration) {
	refresh := func() {
		if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Printf("server: refresh failed: %v", err)
		}
	}

	refresh()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "cleanstat")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "cleanstat.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, sourceName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	status := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render(value))
	}

	logo := cyan.Bold(true).Render(`
    ╔═╗╦  ╔═╗╔═╗╔╗╔╔═╗╔╦╗╔═╗╔╦╗
    ║  ║  ║╣ ╠═╣║║║╚═╗ ║ ╠═╣ ║
    ╚═╝╩═╝╚═╝╩ ╩╝╚╝╚═╝ ╩ ╩ ╩ ╩`)

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Source"), "")
	switch sourceName {
	case "command":
		lines = append(lines, status(true, "Command", cfg.SourceCommand))
	case "file":
		lines = append(lines, status(true, "Log File", shortenPath(cfg.SourcePath)))
	default:
		lines = append(lines, status(false, "Log Source", "none (ingest only)"))
	}
	if cfg.RefreshInterval > 0 {
		lines = append(lines, status(true, "Refresh", "every "+cfg.RefreshInterval.String()))
	} else {
		lines = append(lines, status(false, "Refresh", "startup only"))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, status(true, "HTTP API", cfg.APIAddr))
	} else {
		lines = append(lines, status(false, "HTTP API", "disabled"))
	}
	if cfg.TCPEnabled {
		lines = append(lines, status(true, "TCP Ingest", cfg.TCPAddr))
	} else {
		lines = append(lines, status(false, "TCP Ingest", "disabled"))
	}
	lines = append(lines, status(true, "Unix Socket", shortenPath(cfg.SocketPath)), "")

	lines = append(lines, bold.Render("    Storage"), "")
	storage := cfg.StoreBackend
	if cfg.StorePath != "" && cfg.StoreBackend != backendMemory {
		storage += " " + shortenPath(cfg.StorePath)
	}
	lines = append(lines, status(true, "Storage", storage))
	if cfg.RetentionCheckInterval > 0 {
		lines = append(lines, status(true, "Retention", "7 days, checked every "+cfg.RetentionCheckInterval.String()))
	} else {
		lines = append(lines, status(false, "Retention", "7 days, on merge only"))
	}
	if cfg.BackupEnabled {
		lines = append(lines, status(true, "Snapshots", shortenPath(cfg.BackupLocalDir)))
	} else {
		lines = append(lines, status(false, "Snapshots", "disabled"))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, status(true, "Config File", shortenPath(cfg.ConfigPath)))
	} else {
		lines = append(lines, status(false, "Config File", "default (no file)"))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
