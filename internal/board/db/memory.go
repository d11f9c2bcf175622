package db

import (
	"context"
	"log"
	"sync"
)

// Memory keeps the snapshot in process memory.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	saves  int
	fail   error
	logger *log.Logger
}

// NewMemory returns an empty in-memory adapter.
func NewMemory(logger *log.Logger) *Memory {
	return &Memory{logger: defaultLogger(logger)}
}

// Save implements Adapter.Save.
func (m *Memory) Save(ctx context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}
	m.data = seal(blob)
	m.saves++
	return nil
}

// Load implements Adapter.Load.
func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return openSealed(m.logger, "memory", m.data), nil
}

// Close implements Adapter.Close.
func (m *Memory) Close() error { return nil }

// Usage implements Inspector.Usage.
func (m *Memory) Usage(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

// Clear implements Inspector.Clear.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// FailSaves makes every subsequent Save return err (nil restores normal
// behaviour). It simulates a full disk or a dropped database.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Corrupt flips a byte of the stored envelope.
func (m *Memory) Corrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) > 0 {
		m.data[len(m.data)-1] ^= 0xff
	}
}

// Saves returns how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
