package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/cleanstat/internal/model"
	"github.com/tinytelemetry/cleanstat/internal/socketrpc"
)

const (
	defaultBindHost               = "127.0.0.1"
	defaultAPIPort                = 3000
	defaultTCPPort                = 4000
	defaultStoreBackend           = backendFile
	defaultRefreshInterval        = model.DefaultRefreshInterval
	defaultQueryTimeout           = 30 * time.Second
	defaultRetentionCheckInterval = time.Hour
	defaultBackupInterval         = 6 * time.Hour
	defaultBackupKeepLast         = 24

	backendFile   = "file"
	backendDuckDB = "duckdb"
	backendMemory = "memory"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	SourcePath             string        `mapstructure:"source-path"`
	SourceCommand          string        `mapstructure:"source-command"`
	StoreBackend           string        `mapstructure:"store-backend"`
	StorePath              string        `mapstructure:"store-path"`
	StoreKey               string        `mapstructure:"store-key"`
	RefreshInterval        time.Duration `mapstructure:"refresh-interval"`
	APIEnabled             bool          `mapstructure:"api-enabled"`
	APIPort                int           `mapstructure:"api-port"`
	APIAddr                string        `mapstructure:"api-addr"`
	TCPEnabled             bool          `mapstructure:"tcp-enabled"`
	TCPPort                int           `mapstructure:"tcp-port"`
	TCPAddr                string        `mapstructure:"tcp-addr"`
	QueryTimeout           time.Duration `mapstructure:"query-timeout"`
	RetentionCheckInterval time.Duration `mapstructure:"retention-check-interval"`
	SocketPath             string        `mapstructure:"socket-path"`
	BackupEnabled          bool          `mapstructure:"backup-enabled"`
	BackupInterval         time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir         string        `mapstructure:"backup-local-dir"`
	BackupKeepLast         int           `mapstructure:"backup-keep-last"`
	BackupCompress         bool          `mapstructure:"backup-compress"`
	ConfigPath             string        `mapstructure:"-"` // not from config file
}

// registerConfigFlags declares the flags that override config keys.
// Flag names match viper keys so BindPFlags wires them directly.
func registerConfigFlags(fs *pflag.FlagSet) {
	fs.String("source-path", model.DefaultSourcePath, "log file to read")
	fs.String("source-command", "", "command whose stdout is the log (overrides source-path)")
	fs.String("store-backend", defaultStoreBackend, "persistence backend: file, duckdb or memory")
	fs.String("store-path", "", "store directory (file) or database file (duckdb)")
	fs.String("store-key", model.DefaultStoreKey, "key the record list is stored under")
	fs.Duration("refresh-interval", defaultRefreshInterval, "periodic refresh interval, 0 disables")
	fs.Bool("api-enabled", true, "serve the HTTP API")
	fs.Int("api-port", defaultAPIPort, "HTTP API port")
	fs.Bool("tcp-enabled", false, "accept pushed logs over TCP")
	fs.Int("tcp-port", defaultTCPPort, "TCP push port")
	fs.String("socket-path", socketrpc.DefaultSocketPath(), "Unix socket for the dashboard")
}

func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CLEANSTAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("source-path", model.DefaultSourcePath)
	v.SetDefault("source-command", "")
	v.SetDefault("store-backend", defaultStoreBackend)
	v.SetDefault("store-path", "")
	v.SetDefault("store-key", model.DefaultStoreKey)
	v.SetDefault("refresh-interval", defaultRefreshInterval)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("tcp-enabled", false)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("tcp-addr", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("retention-check-interval", defaultRetentionCheckInterval)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(home, ".local", "share", "cleanstat", "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-compress", true)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "cleanstat", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.RefreshInterval < 0 {
		return cfg, fmt.Errorf("invalid refresh-interval: %s", cfg.RefreshInterval)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case backendFile, backendDuckDB, backendMemory:
	default:
		return cfg, fmt.Errorf("invalid store-backend: %q (want file, duckdb or memory)", cfg.StoreBackend)
	}

	if cfg.StorePath == "" {
		dataDir := filepath.Join(home, ".local", "share", "cleanstat")
		switch cfg.StoreBackend {
		case backendFile:
			cfg.StorePath = dataDir
		case backendDuckDB:
			cfg.StorePath = filepath.Join(dataDir, "cleanstat.duckdb")
		}
	}

	// Expand ~ in paths
	cfg.StorePath = expandHome(home, cfg.StorePath)
	cfg.SourcePath = expandHome(home, cfg.SourcePath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
