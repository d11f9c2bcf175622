// Package monitor turns connectivity signals into sync engine state.
//
// Going offline is applied immediately. Coming back online is debounced so a
// flapping link does not start a pass on every blip; once the link has stayed
// up for the debounce delay the target is marked online and triggered.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Target receives connectivity changes. *sync.Engine implements it.
type Target interface {
	SetOnline(online bool)
	Online() bool
	Trigger()
}

// Source produces connectivity signals until ctx is cancelled.
type Source interface {
	Watch(ctx context.Context, signal func(online bool)) error
}

// Config holds monitor configuration.
type Config struct {
	// Debounce is how long the link must stay up before going online
	// (default: 1s)
	Debounce time.Duration `mapstructure:"debounce"`

	// ProbeInterval is how often a Prober checks the remote (default: 15s)
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// FlagFile, when set, forces offline while the file exists.
	FlagFile string `mapstructure:"flag_file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:      1 * time.Second,
		ProbeInterval: 15 * time.Second,
	}
}

// Monitor debounces connectivity signals into a Target.
type Monitor struct {
	target Target
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	online  bool
	pending *time.Timer
	gen     uint64
	flips   int
}

// New creates a monitor. The initial state is taken from the target.
//
// If logger is nil, a default logger writing to stderr is used.
func New(target Target, cfg Config, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	return &Monitor{
		target: target,
		cfg:    cfg,
		logger: logger,
		online: target.Online(),
	}
}

// Signal records one connectivity observation. It is safe for concurrent use.
func (m *Monitor) Signal(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !online {
		m.cancelPendingLocked()
		if m.online {
			m.online = false
			m.flips++
			m.logger.Printf("Connection lost")
			m.target.SetOnline(false)
		}
		return
	}

	if m.online || m.pending != nil {
		return
	}
	if m.cfg.Debounce == 0 {
		m.goOnlineLocked()
		return
	}

	m.gen++
	gen := m.gen
	m.pending = time.AfterFunc(m.cfg.Debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.gen || m.pending == nil {
			return
		}
		m.pending = nil
		m.goOnlineLocked()
	})
}

func (m *Monitor) goOnlineLocked() {
	m.online = true
	m.flips++
	m.logger.Printf("Connection restored, triggering sync")
	m.target.SetOnline(true)
	m.target.Trigger()
}

func (m *Monitor) cancelPendingLocked() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
		m.gen++
	}
}

// Online reports the debounced state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Transitions returns how many times the applied state has changed.
func (m *Monitor) Transitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flips
}

// Run watches every source until ctx is cancelled or a source fails.
func (m *Monitor) Run(ctx context.Context, sources ...Source) error {
	defer func() {
		m.mu.Lock()
		m.cancelPendingLocked()
		m.mu.Unlock()
	}()

	if len(sources) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			if err := src.Watch(gctx, m.Signal); err != nil && gctx.Err() == nil {
				return fmt.Errorf("connectivity source failed: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
