// Package logging builds the per-component loggers used across boardsync.
//
// Every component gets a standard *log.Logger with a "[component] " prefix.
// Output goes to stderr, or to a size-rotated file when a path is configured
// (long-running daemons).
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	// File, when set, receives logs instead of stderr and is rotated.
	File string `mapstructure:"file"`

	// MaxSizeMB is the size at which the file is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is how many rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAgeDays removes rotated files older than this (default: 28)
	MaxAgeDays int `mapstructure:"max_age_days"`

	// Verbose enables debug loggers.
	Verbose bool `mapstructure:"verbose"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Logs hands out component loggers sharing one writer.
type Logs struct {
	out     io.Writer
	closer  io.Closer
	verbose bool

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// New creates the shared writer described by cfg.
func New(cfg Config) (*Logs, error) {
	l := &Logs{out: os.Stderr, verbose: cfg.Verbose, loggers: make(map[string]*log.Logger)}
	if cfg.File == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = def.MaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = def.MaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = def.MaxAgeDays
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	l.out = rotator
	l.closer = rotator
	return l, nil
}

// Discard returns Logs that write nowhere.
func Discard() *Logs {
	return &Logs{out: io.Discard, loggers: make(map[string]*log.Logger)}
}

// For returns the logger for component, e.g. For("sync") prefixes "[sync] ".
func (l *Logs) For(component string) *log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lg, ok := l.loggers[component]; ok {
		return lg
	}
	lg := log.New(l.out, "["+component+"] ", log.LstdFlags)
	l.loggers[component] = lg
	return lg
}

// Debug returns the component logger when verbose, otherwise a discarding one.
func (l *Logs) Debug(component string) *log.Logger {
	if !l.verbose {
		return log.New(io.Discard, "", 0)
	}
	return l.For(component)
}

// Writer is the underlying output.
func (l *Logs) Writer() io.Writer {
	return l.out
}

// Close flushes and closes a log file, if any.
func (l *Logs) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
