package monitor

import (
	"context"
	"time"
)

// Manual forwards signals pushed by the host.
type Manual struct {
	ch chan bool
}

// NewManual creates a manual source.
func NewManual() *Manual {
	return &Manual{ch: make(chan bool, 16)}
}

// Set queues a signal. It drops the signal if nobody is watching and the
// buffer is full.
func (s *Manual) Set(online bool) {
	select {
	case s.ch <- online:
	default:
	}
}

// Watch implements Source.
func (s *Manual) Watch(ctx context.Context, signal func(bool)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online := <-s.ch:
			signal(online)
		}
	}
}

// Prober polls a health check. A nil error means online.
type Prober struct {
	Check    func(ctx context.Context) error
	Interval time.Duration
	// Timeout bounds each check (default: Interval)
	Timeout time.Duration
}

// Watch implements Source. The first check runs immediately.
func (p *Prober) Watch(ctx context.Context, signal func(bool)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultConfig().ProbeInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(cctx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		signal(err == nil)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
