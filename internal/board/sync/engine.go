package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/peak-flow/boardsync/internal/board/remote"
	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
)

var (
	// ErrOffline is returned when a pass is requested while offline.
	ErrOffline = errors.New("offline")

	// ErrPassInProgress is returned when another pass is draining. The running
	// pass will make one follow-up pass.
	ErrPassInProgress = errors.New("sync pass already in progress")
)

// Config holds engine configuration.
type Config struct {
	// MaxRetries is how many transient failures an id may see before it is
	// demoted to Failed (default: 5)
	MaxRetries int `mapstructure:"max_retries"`

	// BaseBackoff is the delay after the first failure (default: 1s)
	BaseBackoff time.Duration `mapstructure:"base_backoff"`

	// MaxBackoff caps the delay (default: 1m)
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// Jitter stretches each delay by up to this fraction (default: 0.2)
	Jitter float64 `mapstructure:"jitter"`

	// CallTimeout bounds each remote call (default: 10s)
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  1 * time.Minute,
		Jitter:      0.2,
		CallTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	return c
}

// Engine propagates queued changes from a store to a remote authority.
type Engine struct {
	store  *store.Store
	remote remote.Authority
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	passMu   stdsync.Mutex
	followUp atomic.Bool
	trigger  chan struct{}
	online   atomic.Bool

	mu         stdsync.Mutex
	retries    map[string]*retryState
	rng        *rand.Rand
	retryTimer *time.Timer
	retryAt    time.Time
	state      State
	lastPass   *time.Time
	lastError  string

	subsMu stdsync.Mutex
	subs   map[int]chan Status
	nextID int
}

// New creates an engine. It starts online.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, authority remote.Authority, cfg Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	e := &Engine{
		store:   st,
		remote:  authority,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		retries: make(map[string]*retryState),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		state:   Idle,
		subs:    make(map[int]chan Status),
	}
	e.online.Store(true)
	return e
}

// Trigger requests a pass without blocking. Requests made before Run picks
// up the previous one collapse into a single pass.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SetOnline records connectivity. Going offline does not cancel a running
// pass.
func (e *Engine) SetOnline(online bool) {
	if e.online.Swap(online) != online {
		if online {
			e.logger.Printf("Online")
		} else {
			e.logger.Printf("Offline, pausing sync")
		}
		e.publish()
	}
}

// Online reports the last connectivity signal.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Run consumes triggers until ctx is cancelled. It starts with one pass if
// anything is pending.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.store.Pending()) > 0 {
		e.Trigger()
	}
	defer e.stopRetryTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
			if !e.Online() {
				continue
			}
			report, err := e.RunPass(ctx)
			switch {
			case err == nil:
				if report.Passes > 0 && (report.Synced+report.Deleted+len(report.Conflicts)+len(report.Failed)+report.Retried) > 0 {
					e.logger.Printf("Sync pass complete: %s", report)
				}
			case errors.Is(err, ErrPassInProgress), errors.Is(err, ErrOffline):
			default:
				e.logger.Printf("WARNING: sync pass failed: %v", err)
			}
		}
	}
}

// ForceSync re-queues Failed cards, clears pending backoff, and runs a pass.
func (e *Engine) ForceSync(ctx context.Context) (*Report, error) {
	if !e.Online() {
		return nil, ErrOffline
	}
	n, err := e.store.RequeueFailed(ctx)
	if err != nil {
		e.logger.Printf("WARNING: failed to persist requeued cards: %v", err)
	}
	if n > 0 {
		e.logger.Printf("Requeued %d failed item(s)", n)
	}

	e.mu.Lock()
	e.retries = make(map[string]*retryState)
	e.mu.Unlock()

	return e.RunPass(ctx)
}

// RunPass drains the queue once, plus one follow-up pass if more work was
// requested meanwhile. It returns ErrPassInProgress if another pass is
// draining and ErrOffline when offline.
func (e *Engine) RunPass(ctx context.Context) (*Report, error) {
	if !e.Online() {
		return nil, ErrOffline
	}
	if !e.passMu.TryLock() {
		e.followUp.Store(true)
		return nil, ErrPassInProgress
	}
	defer func() {
		e.passMu.Unlock()
		// Requested after the last follow-up check.
		if e.followUp.Swap(false) {
			e.Trigger()
		}
	}()

	report := newReport(e.now())
	e.setState(Draining)
	defer func() {
		report.Duration = e.now().Sub(report.Started)
		e.finish(report)
	}()

	for {
		e.followUp.Store(false)
		e.pass(ctx, report)
		report.Passes++

		if report.Cancelled || ctx.Err() != nil || !e.Online() {
			return report, nil
		}
		if !e.followUp.Load() {
			return report, nil
		}
	}
}

// pass pushes every id queued at its start.
func (e *Engine) pass(ctx context.Context, report *Report) {
	for _, id := range e.store.Pending() {
		// Cooperative cancellation: only between ids.
		if ctx.Err() != nil {
			report.Cancelled = true
			return
		}
		if e.backingOff(id) {
			report.Skipped++
			continue
		}

		item, ok := e.store.Lookup(id)
		if !ok {
			continue
		}
		if item.Tombstone != nil {
			e.pushDelete(ctx, id, report)
		} else {
			e.pushCard(ctx, item, report)
		}
		e.publish()
	}
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// The in-flight call outlives pass cancellation but not CallTimeout.
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
}

func (e *Engine) pushCard(ctx context.Context, item store.Item, report *Report) {
	card := item.Card
	switch card.SyncState {
	case schema.Conflict:
		report.Held++
		return
	case schema.Dirty:
	default:
		report.Skipped++
		return
	}
	if !e.store.MarkSyncing(card.ID, card.Rev) {
		// Changed since Lookup; the next pass sees the new revision.
		e.followUp.Store(true)
		report.Skipped++
		return
	}

	callCtx, cancel := e.callContext(ctx)
	version, err := e.remote.Upsert(callCtx, card.ToRemote(item.Position), card.RemoteVersion)
	cancel()

	// Bookkeeping must land even if the pass was cancelled during the call.
	bctx := context.WithoutCancel(ctx)

	if err == nil {
		e.clearRetry(card.ID)
		state, err := e.store.MarkSynced(bctx, card.ID, card.Rev, version)
		switch {
		case errors.Is(err, store.ErrEntityNotFound):
			// Deleted mid-flight: the tombstone still has to go out.
			e.followUp.Store(true)
		case err != nil:
			e.logger.Printf("WARNING: %s synced but not persisted: %v", card.ID, err)
		}
		if state == schema.Dirty {
			e.followUp.Store(true)
		}
		report.Synced++
		return
	}

	if ce, ok := remote.IsConflict(err); ok {
		e.clearRetry(card.ID)
		markErr := e.store.MarkConflict(bctx, card.ID, ce.ServerVersion, ce.Remote)
		switch {
		case errors.Is(markErr, store.ErrEntityNotFound):
			// Deleted locally while in flight; the tombstone wins.
			e.followUp.Store(true)
			return
		case markErr != nil:
			e.logger.Printf("WARNING: failed to persist conflict for %s: %v", card.ID, markErr)
		}
		e.logger.Printf("Conflict on %s: %v", card.ID, ce)
		report.Conflicts = append(report.Conflicts, card.ID)
		report.note(card.ID, ce.Error())
		return
	}

	e.store.MarkRetry(card.ID, card.Rev, err.Error())
	e.failed(bctx, card.ID, card.Rev, err, report)
}

func (e *Engine) pushDelete(ctx context.Context, id string, report *Report) {
	callCtx, cancel := e.callContext(ctx)
	err := e.remote.Delete(callCtx, id)
	cancel()

	bctx := context.WithoutCancel(ctx)
	if err == nil {
		e.clearRetry(id)
		if err := e.store.PurgeTombstone(bctx, id); err != nil {
			e.logger.Printf("WARNING: %s deleted remotely but tombstone not purged: %v", id, err)
		}
		report.Deleted++
		return
	}
	e.failed(bctx, id, 0, err, report)
}

// failed handles a non-conflict failure of id at revision rev.
func (e *Engine) failed(ctx context.Context, id string, rev int64, err error, report *Report) {
	if errors.Is(err, remote.ErrRejected) {
		e.clearRetry(id)
		e.demote(ctx, id, rev, err.Error(), report)
		return
	}

	// Anything that is not a conflict or a rejection is treated as transient.
	if !e.Online() {
		report.Expected++
		return
	}

	e.mu.Lock()
	st := e.retries[id]
	if st == nil || st.rev != rev {
		st = &retryState{rev: rev}
		e.retries[id] = st
	}
	st.attempts++
	attempts := st.attempts
	exhausted := attempts >= e.cfg.MaxRetries
	var delay time.Duration
	if exhausted {
		delete(e.retries, id)
	} else {
		delay = backoff(attempts, e.cfg.BaseBackoff, e.cfg.MaxBackoff, e.cfg.Jitter, e.rng)
		st.next = e.now().Add(delay)
	}
	e.mu.Unlock()

	if exhausted {
		e.demote(ctx, id, rev, fmt.Sprintf("gave up after %d attempts: %v", attempts, err), report)
		return
	}

	e.logger.Printf("Transient failure on %s (attempt %d/%d), retrying in %v: %v",
		id, attempts, e.cfg.MaxRetries, delay.Round(time.Millisecond), err)
	report.Retried++
	report.note(id, err.Error())
	e.armRetry()
}

func (e *Engine) demote(ctx context.Context, id string, rev int64, reason string, report *Report) {
	if err := e.store.MarkFailed(ctx, id, rev, reason); err != nil {
		e.logger.Printf("WARNING: failed to mark %s failed: %v", id, err)
	}
	e.logger.Printf("Sync failed for %s: %s", id, reason)
	report.Failed = append(report.Failed, id)
	report.note(id, reason)
}

func (e *Engine) backingOff(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.retries[id]
	return st != nil && e.now().Before(st.next)
}

func (e *Engine) clearRetry(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retries, id)
}

// armRetry points the retry timer at the earliest backoff deadline. A timer
// already armed for that deadline or an earlier one that has not fired yet is
// left alone.
func (e *Engine) armRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armRetryLocked()
}

func (e *Engine) armRetryLocked() {
	// Deadlines already past are left to the next trigger.
	now := e.now()
	var next time.Time
	for _, st := range e.retries {
		if st.next.After(now) && (next.IsZero() || st.next.Before(next)) {
			next = st.next
		}
	}
	if next.IsZero() {
		return
	}
	if e.retryTimer != nil && !e.retryAt.After(next) && e.retryAt.After(now) {
		return
	}
	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}
	e.retryAt = next
	e.retryTimer = time.AfterFunc(next.Sub(now), e.Trigger)
}

func (e *Engine) stopRetryTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
		e.retryAt = time.Time{}
	}
}

// NextRetry returns when the earliest backing-off id becomes eligible.
func (e *Engine) NextRetry() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var next time.Time
	for _, st := range e.retries {
		if next.IsZero() || st.next.Before(next) {
			next = st.next
		}
	}
	return next, !next.IsZero()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) finish(report *Report) {
	e.mu.Lock()
	e.state = Idle
	now := e.now()
	e.lastPass = &now
	e.lastError = report.LastError
	// Ids that succeeded this pass may have owned the armed deadline.
	e.armRetryLocked()
	e.mu.Unlock()
	e.publish()
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	counts := e.store.Counts()

	e.mu.Lock()
	st := Status{
		State:     e.state,
		Online:    e.Online(),
		Pending:   counts.Queued,
		Conflicts: counts.Conflicts,
		Failed:    counts.Failed,
		LastError: e.lastError,
	}
	if e.lastPass != nil {
		t := *e.lastPass
		st.LastPass = &t
	}
	e.mu.Unlock()

	if at, ok := e.store.LastSyncedAt(); ok {
		st.LastSyncedAt = &at
	}
	return st
}

// Subscribe returns a channel receiving the engine status after every change.
// A subscriber that is not keeping up misses intermediate statuses; cancel
// closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Status, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Status, buffer)

	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subsMu.Unlock()

	var once stdsync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) publish() {
	st := e.Status()

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
