package monitor

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = log.New(io.Discard, "", 0)

type fakeTarget struct {
	mu       sync.Mutex
	online   bool
	changes  []bool
	triggers int
}

func (f *fakeTarget) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
	f.changes = append(f.changes, online)
}

func (f *fakeTarget) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeTarget) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeTarget) snapshot() ([]bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.changes...), f.triggers
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitor_OfflineIsImmediate(t *testing.T) {
	target := &fakeTarget{online: true}
	m := New(target, Config{Debounce: time.Hour}, quiet)

	m.Signal(false)

	changes, triggers := target.snapshot()
	if !reflect.DeepEqual(changes, []bool{false}) || triggers != 0 {
		t.Fatalf("changes = %v triggers = %d, want [false] and none", changes, triggers)
	}
	if m.Online() {
		t.Error("monitor still online")
	}

	// Repeated offline signals are no-ops.
	m.Signal(false)
	if changes, _ = target.snapshot(); len(changes) != 1 {
		t.Errorf("changes = %v, want a single transition", changes)
	}
}

func TestMonitor_OnlineIsDebounced(t *testing.T) {
	target := &fakeTarget{online: false}
	m := New(target, Config{Debounce: 30 * time.Millisecond}, quiet)

	m.Signal(true)
	if changes, _ := target.snapshot(); len(changes) != 0 {
		t.Fatalf("changes = %v before the debounce delay", changes)
	}

	waitFor(t, "online", target.Online)
	changes, triggers := target.snapshot()
	if !reflect.DeepEqual(changes, []bool{true}) || triggers != 1 {
		t.Errorf("changes = %v triggers = %d, want [true] and 1", changes, triggers)
	}
	if got := m.Transitions(); got != 1 {
		t.Errorf("Transitions = %d, want 1", got)
	}
}

func TestMonitor_FlappingNeverGoesOnline(t *testing.T) {
	target := &fakeTarget{online: false}
	m := New(target, Config{Debounce: 50 * time.Millisecond}, quiet)

	for i := 0; i < 5; i++ {
		m.Signal(true)
		time.Sleep(10 * time.Millisecond)
		m.Signal(false)
	}
	time.Sleep(100 * time.Millisecond)

	changes, triggers := target.snapshot()
	if len(changes) != 0 || triggers != 0 {
		t.Errorf("changes = %v triggers = %d, want none", changes, triggers)
	}
	if m.Online() {
		t.Error("flapping link went online")
	}
}

func TestMonitor_ZeroDebounce(t *testing.T) {
	target := &fakeTarget{online: false}
	m := New(target, Config{}, quiet)

	m.Signal(true)
	m.Signal(true)

	changes, triggers := target.snapshot()
	if !reflect.DeepEqual(changes, []bool{true}) || triggers != 1 {
		t.Errorf("changes = %v triggers = %d, want [true] and 1", changes, triggers)
	}
}

func TestMonitor_RunManual(t *testing.T) {
	target := &fakeTarget{online: true}
	m := New(target, Config{Debounce: 10 * time.Millisecond}, quiet)
	manual := NewManual()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, manual) }()

	manual.Set(false)
	waitFor(t, "offline", func() bool { return !target.Online() })

	manual.Set(true)
	waitFor(t, "online", target.Online)

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestProber(t *testing.T) {
	var healthy atomic.Bool
	probe := &Prober{
		Interval: 10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("connection refused")
		},
	}

	target := &fakeTarget{online: true}
	m := New(target, Config{}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, probe)

	waitFor(t, "offline", func() bool { return !target.Online() })
	healthy.Store(true)
	waitFor(t, "online", target.Online)

	if _, triggers := target.snapshot(); triggers != 1 {
		t.Errorf("triggers = %d, want 1", triggers)
	}
}

func TestFlagFile(t *testing.T) {
	flag := filepath.Join(t.TempDir(), "offline")
	target := &fakeTarget{online: true}
	m := New(target, Config{}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, &FlagFile{Path: flag}) }()

	// Give the watcher time to register before touching the directory.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(flag, nil, 0644); err != nil {
		t.Fatalf("failed to create flag file: %v", err)
	}
	waitFor(t, "offline", func() bool { return !target.Online() })

	if err := os.Remove(flag); err != nil {
		t.Fatalf("failed to remove flag file: %v", err)
	}
	waitFor(t, "online", target.Online)

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestFlagFile_PresentAtStart(t *testing.T) {
	flag := filepath.Join(t.TempDir(), "offline")
	if err := os.WriteFile(flag, nil, 0644); err != nil {
		t.Fatalf("failed to create flag file: %v", err)
	}

	target := &fakeTarget{online: true}
	m := New(target, Config{}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, &FlagFile{Path: flag})

	waitFor(t, "offline", func() bool { return !target.Online() })
}

func TestFlagFile_MissingDirectory(t *testing.T) {
	m := New(&fakeTarget{online: true}, Config{}, quiet)
	err := m.Run(context.Background(), &FlagFile{Path: filepath.Join(t.TempDir(), "nope", "offline")})
	if err == nil {
		t.Error("expected an error for a missing directory")
	}
}
