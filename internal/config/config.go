// Package config loads boardsync configuration.
//
// Values are layered, highest precedence first: command-line flags,
// BOARDSYNC_* environment variables (a .env file is read into the
// environment first), the config file, then built-in defaults.
//
// The config file is boardsync.yaml (or .toml / .json) in the data
// directory, or any path given with --config.
//
//	store:
//	  backend: sqlite
//	  dir: .boardsync
//	remote:
//	  url: http://127.0.0.1:8787
//	sync:
//	  max_retries: 5
//	  base_backoff: 1s
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/monitor"
	"github.com/peak-flow/boardsync/internal/board/remote"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
	"github.com/peak-flow/boardsync/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// BOARDSYNC_STORE_BACKEND or BOARDSYNC_SYNC_MAX_RETRIES.
const EnvPrefix = "BOARDSYNC"

// FileName is the config file base name searched for in the data dir.
const FileName = "boardsync"

// DashboardConfig configures the daemon's websocket dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the full boardsync configuration.
type Config struct {
	Store     db.Config           `mapstructure:"store"`
	Remote    remote.ClientConfig `mapstructure:"remote"`
	Server    remote.ServerConfig `mapstructure:"server"`
	Sync      bsync.Config        `mapstructure:"sync"`
	Monitor   monitor.Config      `mapstructure:"monitor"`
	Dashboard DashboardConfig     `mapstructure:"dashboard"`
	Log       logging.Config      `mapstructure:"log"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:     db.DefaultConfig(),
		Remote:    remote.DefaultClientConfig(),
		Server:    remote.DefaultServerConfig(),
		Sync:      bsync.DefaultConfig(),
		Monitor:   monitor.DefaultConfig(),
		Dashboard: DashboardConfig{Enabled: true, Addr: "127.0.0.1:8080"},
		Log:       logging.DefaultConfig(),
	}
}

// FlagKeys maps command-line flag names to config keys. Flags that are
// not registered on a command are skipped.
var FlagKeys = map[string]string{
	"backend":        "store.backend",
	"data-dir":       "store.dir",
	"db":             "store.path",
	"remote":         "remote.url",
	"secret":         "remote.secret",
	"verbose":        "log.verbose",
	"log-file":       "log.file",
	"dashboard-addr": "dashboard.addr",
	"listen":         "server.addr",
}

// Options controls Load.
type Options struct {
	// File is an explicit config file; when empty the data dir is searched.
	File string

	// Flags are bound according to FlagKeys.
	Flags *pflag.FlagSet

	// EnvFiles are dotenv files loaded into the environment first.
	// Missing files are ignored.
	EnvFiles []string
}

// Load resolves configuration from defaults, file, environment and flags.
func Load(opts Options) (*Config, error) {
	if err := LoadEnvFiles(opts.EnvFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("store.dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	// --no-dashboard is inverted so it cannot be bound directly.
	if opts.Flags != nil {
		if f := opts.Flags.Lookup("no-dashboard"); f != nil && f.Changed && f.Value.String() == "true" {
			cfg.Dashboard.Enabled = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles reads dotenv files into the process environment without
// overriding variables that are already set.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite", "bolt":
	case "postgres", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s backend", c.Store.Backend)
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Sync.Jitter < 0 || c.Sync.Jitter > 1 {
		return fmt.Errorf("sync.jitter must be between 0 and 1")
	}
	if c.Monitor.Debounce < 0 {
		return fmt.Errorf("monitor.debounce must not be negative")
	}
	return nil
}

// setDefaults registers every key so environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.name", d.Store.Name)
	v.SetDefault("store.s3.bucket", d.Store.S3.Bucket)
	v.SetDefault("store.s3.key", d.Store.S3.Key)
	v.SetDefault("store.s3.region", d.Store.S3.Region)
	v.SetDefault("store.s3.endpoint", d.Store.S3.Endpoint)
	v.SetDefault("store.s3.access_key", d.Store.S3.AccessKey)
	v.SetDefault("store.s3.secret_key", d.Store.S3.SecretKey)

	v.SetDefault("remote.url", d.Remote.BaseURL)
	v.SetDefault("remote.secret", d.Remote.Secret)
	v.SetDefault("remote.client_name", d.Remote.ClientName)
	v.SetDefault("remote.rate_limit", d.Remote.RateLimit)
	v.SetDefault("remote.burst", d.Remote.Burst)
	v.SetDefault("remote.timeout", d.Remote.Timeout)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.secret", d.Server.Secret)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.burst", d.Server.Burst)

	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.base_backoff", d.Sync.BaseBackoff)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("sync.jitter", d.Sync.Jitter)
	v.SetDefault("sync.call_timeout", d.Sync.CallTimeout)

	v.SetDefault("monitor.debounce", d.Monitor.Debounce)
	v.SetDefault("monitor.probe_interval", d.Monitor.ProbeInterval)
	v.SetDefault("monitor.flag_file", d.Monitor.FlagFile)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.verbose", d.Log.Verbose)
}
