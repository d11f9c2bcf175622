package remote

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// MemoryConfig controls fault injection on a Memory authority.
type MemoryConfig struct {
	// FailureRate is the probability (0..1) that a call fails transiently.
	FailureRate float64

	// MinLatency and MaxLatency bound the simulated round trip.
	MinLatency time.Duration
	MaxLatency time.Duration

	// Seed makes failure injection reproducible. 0 seeds from the clock.
	Seed int64
}

// FlakyConfig mimics a slow, unreliable network: 200-500ms per call and a
// 10% failure rate.
func FlakyConfig() MemoryConfig {
	return MemoryConfig{
		FailureRate: 0.1,
		MinLatency:  200 * time.Millisecond,
		MaxLatency:  500 * time.Millisecond,
	}
}

type memRecord struct {
	card    schema.RemoteCard
	version int64
	deleted bool
}

// Memory is an in-process Authority with versioned optimistic concurrency.
type Memory struct {
	mu        sync.Mutex
	records   map[string]*memRecord
	cfg       MemoryConfig
	rng       *rand.Rand
	reachable bool
	failNext  map[string]int
	calls     int
}

// NewMemory returns an empty, reachable authority.
func NewMemory(cfg MemoryConfig) *Memory {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Memory{
		records:   make(map[string]*memRecord),
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		reachable: true,
		failNext:  make(map[string]int),
	}
}

// SetReachable simulates the authority going offline or coming back.
func (m *Memory) SetReachable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reachable = ok
}

// Reachable reports the simulated connectivity.
func (m *Memory) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// FailNext makes the next n calls touching id fail transiently.
func (m *Memory) FailNext(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[id] = n
}

// Calls returns how many Upsert and Delete calls were made.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Health implements the probe used by the connectivity monitor.
func (m *Memory) Health(ctx context.Context) error {
	if !m.Reachable() {
		return ErrUnreachable
	}
	return nil
}

// before simulates the network for one call on id.
func (m *Memory) before(ctx context.Context, id string) error {
	m.mu.Lock()
	m.calls++
	delay := m.cfg.MinLatency
	if spread := m.cfg.MaxLatency - m.cfg.MinLatency; spread > 0 {
		delay += time.Duration(m.rng.Int63n(int64(spread)))
	}
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reachable {
		return ErrUnreachable
	}
	if n := m.failNext[id]; n > 0 {
		m.failNext[id] = n - 1
		return fmt.Errorf("%w: injected failure for %s", ErrTransient, id)
	}
	if m.cfg.FailureRate > 0 && m.rng.Float64() < m.cfg.FailureRate {
		return fmt.Errorf("%w: simulated network failure", ErrTransient)
	}
	return nil
}

// Upsert implements Authority.Upsert.
func (m *Memory) Upsert(ctx context.Context, card schema.RemoteCard, baseVersion int64) (int64, error) {
	if err := m.before(ctx, card.ID); err != nil {
		return 0, err
	}
	if card.ID == "" {
		return 0, fmt.Errorf("%w: card id is required", ErrRejected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[card.ID]
	var current int64
	if rec != nil {
		current = rec.version
	}
	if baseVersion != current {
		ce := &ConflictError{ServerVersion: current}
		if rec != nil && !rec.deleted {
			ce.Remote = rec.card.Clone()
		}
		return 0, ce
	}

	if rec == nil {
		rec = &memRecord{}
		m.records[card.ID] = rec
	}
	rec.card = *card.Clone()
	rec.version = current + 1
	rec.deleted = false
	return rec.version, nil
}

// Delete implements Authority.Delete.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := m.before(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec := m.records[id]; rec != nil && !rec.deleted {
		rec.deleted = true
		rec.version++
	}
	return nil
}

// List implements Lister. Deleted cards are omitted.
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.deleted {
			continue
		}
		out = append(out, Record{Card: *rec.card.Clone(), Version: rec.version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Card.ID < out[j].Card.ID })
	return out, nil
}

// Get returns the stored copy of a live card.
func (m *Memory) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[id]
	if rec == nil || rec.deleted {
		return Record{}, false
	}
	return Record{Card: *rec.card.Clone(), Version: rec.version}, true
}

// Edit applies a change as another client would, bumping the version.
// It returns the new version, or false if the card does not exist.
func (m *Memory) Edit(id string, fn func(*schema.RemoteCard)) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[id]
	if rec == nil || rec.deleted {
		return 0, false
	}
	fn(&rec.card)
	rec.version++
	return rec.version, true
}
