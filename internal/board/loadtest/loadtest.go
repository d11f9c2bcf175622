// Package loadtest drives a store and sync engine against a flaky in-memory
// authority to check that concurrent local edits converge.
//
// Each mutator goroutine plays one user hammering the board: it creates,
// edits, moves and deletes its own cards while the engine syncs in the
// background through simulated latency and random network failures. After
// the mutators stop, the run drains the queue and verifies convergence:
// the queue is empty, every card is Clean, no deletion is outstanding, and
// the authority holds exactly the local cards.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/remote"
	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
)

// Options configures a load test run.
type Options struct {
	// Mutators is the number of concurrent goroutines editing the board.
	Mutators int
	// OpsPerMutator is how many mutations each goroutine performs.
	OpsPerMutator int

	// FailureRate, MinLatency and MaxLatency shape the simulated network.
	FailureRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration

	// Seed makes the network and the operation mix reproducible.
	Seed int64

	// Adapter persists the board; nil uses an in-memory adapter.
	Adapter db.Adapter

	// Engine configures the sync engine under test.
	Engine bsync.Config

	// DrainTimeout bounds how long to wait for the queue to empty.
	DrainTimeout time.Duration
}

// DefaultOptions mirrors a small team on a bad connection.
func DefaultOptions() Options {
	return Options{
		Mutators:      8,
		OpsPerMutator: 50,
		FailureRate:   0.1,
		MinLatency:    2 * time.Millisecond,
		MaxLatency:    10 * time.Millisecond,
		Seed:          42,
		Engine: bsync.Config{
			MaxRetries:  20,
			BaseBackoff: 10 * time.Millisecond,
			MaxBackoff:  200 * time.Millisecond,
			Jitter:      0.2,
			CallTimeout: 2 * time.Second,
		},
		DrainTimeout: 30 * time.Second,
	}
}

// LatencyStats captures local mutation latency.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Result is the outcome of a run.
type Result struct {
	Mutations LatencyStats
	Creates   int
	Updates   int
	Moves     int
	Deletes   int
	Errors    int

	RemoteCalls int
	Drain       time.Duration
	Final       store.Counts
	Remote      int

	// Converged is true when Problems is empty.
	Converged bool
	Problems  []string
}

type opCounts struct {
	creates, updates, moves, deletes, errors int
}

// Run executes a load test. It returns an error only if the harness itself
// could not run; convergence failures are reported in Result.Problems.
func Run(ctx context.Context, opts Options, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	def := DefaultOptions()
	if opts.Mutators <= 0 {
		opts.Mutators = def.Mutators
	}
	if opts.OpsPerMutator <= 0 {
		opts.OpsPerMutator = def.OpsPerMutator
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	adapter := opts.Adapter
	if adapter == nil {
		adapter = db.NewMemory(logger)
	}

	st, err := store.Open(ctx, adapter, store.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	authority := remote.NewMemory(remote.MemoryConfig{
		FailureRate: opts.FailureRate,
		MinLatency:  opts.MinLatency,
		MaxLatency:  opts.MaxLatency,
		Seed:        opts.Seed,
	})
	engine := bsync.New(st, authority, opts.Engine, logger)

	runCtx, stopEngine := context.WithCancel(ctx)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = engine.Run(runCtx)
	}()
	defer func() {
		stopEngine()
		<-engineDone
	}()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		totals    opCounts
	)
	for i := 0; i < opts.Mutators; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d, counts := mutate(ctx, st, engine, rand.New(rand.NewSource(opts.Seed+int64(id))), opts.OpsPerMutator)
			mu.Lock()
			durations = append(durations, d...)
			totals.creates += counts.creates
			totals.updates += counts.updates
			totals.moves += counts.moves
			totals.deletes += counts.deletes
			totals.errors += counts.errors
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &Result{
		Mutations: computeLatencyStats(durations),
		Creates:   totals.creates,
		Updates:   totals.updates,
		Moves:     totals.moves,
		Deletes:   totals.deletes,
		Errors:    totals.errors,
	}

	drainStart := time.Now()
	if err := drain(ctx, st, engine, opts.DrainTimeout); err != nil {
		result.Problems = append(result.Problems, err.Error())
	}
	result.Drain = time.Since(drainStart)
	result.RemoteCalls = authority.Calls()
	result.Final = st.Counts()

	records, err := authority.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote cards: %w", err)
	}
	result.Remote = len(records)
	result.Problems = append(result.Problems, verify(st, records)...)
	result.Converged = len(result.Problems) == 0

	return result, nil
}

// mutate performs ops random mutations on cards this goroutine created.
func mutate(ctx context.Context, st *store.Store, engine *bsync.Engine, rng *rand.Rand, ops int) ([]time.Duration, opCounts) {
	var counts opCounts
	durations := make([]time.Duration, 0, ops)
	var mine []string

	columns := st.Columns()
	for i := 0; i < ops && ctx.Err() == nil; i++ {
		roll := rng.Intn(10)
		if len(mine) == 0 {
			roll = 0
		}

		start := time.Now()
		var err error
		switch {
		case roll < 4:
			col := columns[rng.Intn(len(columns))].ID
			var card *schema.Card
			card, err = st.CreateCard(ctx, col, schema.CardInput{Title: fmt.Sprintf("card %d-%d", rng.Int63(), i)})
			if card != nil {
				mine = append(mine, card.ID)
			}
			counts.creates++
		case roll < 7:
			id := mine[rng.Intn(len(mine))]
			title := fmt.Sprintf("edit %d", i)
			_, err = st.UpdateCard(ctx, id, schema.CardPatch{Title: &title})
			counts.updates++
		case roll < 9:
			id := mine[rng.Intn(len(mine))]
			card, ok := st.Card(id)
			if !ok {
				continue
			}
			to := columns[rng.Intn(len(columns))].ID
			_, err = st.MoveCard(ctx, id, card.ColumnID, to, rng.Intn(8))
			counts.moves++
		default:
			idx := rng.Intn(len(mine))
			err = st.DeleteCard(ctx, mine[idx])
			mine = append(mine[:idx], mine[idx+1:]...)
			counts.deletes++
		}
		durations = append(durations, time.Since(start))
		if err != nil && !errors.Is(err, store.ErrPersistence) {
			counts.errors++
		}
		engine.Trigger()
	}
	return durations, counts
}

// drain keeps the engine busy until nothing is queued or in flight.
func drain(ctx context.Context, st *store.Store, engine *bsync.Engine, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		counts := st.Counts()
		switch {
		case counts.Queued == 0 && counts.Syncing == 0 && counts.Failed == 0:
			return nil
		case counts.Queued == 0 && counts.Syncing == 0:
			if _, err := engine.ForceSync(ctx); err != nil && !errors.Is(err, bsync.ErrPassInProgress) {
				return fmt.Errorf("force sync failed: %w", err)
			}
		default:
			engine.Trigger()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("queue did not drain within %v (%d queued)", timeout, counts.Queued)
		case <-ticker.C:
		}
	}
}

// verify compares local and remote state after a drain.
func verify(st *store.Store, records []remote.Record) []string {
	var problems []string

	board := st.Snapshot()
	if len(board.Queue) > 0 {
		problems = append(problems, fmt.Sprintf("%d ids still queued", len(board.Queue)))
	}
	if len(board.Tombstones) > 0 {
		problems = append(problems, fmt.Sprintf("%d deletions never reached the remote", len(board.Tombstones)))
	}

	remoteByID := make(map[string]remote.Record, len(records))
	for _, rec := range records {
		remoteByID[rec.Card.ID] = rec
	}

	ids := make([]string, 0, len(board.Cards))
	for id := range board.Cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		card := board.Cards[id]
		if card.SyncState != schema.Clean {
			problems = append(problems, fmt.Sprintf("%s is %s", id, card.SyncState))
		}
		rec, ok := remoteByID[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s missing remotely", id))
			continue
		}
		if rec.Card.Title != card.Title || rec.Card.ColumnID != card.ColumnID {
			problems = append(problems, fmt.Sprintf("%s differs: local %q in %s, remote %q in %s",
				id, card.Title, card.ColumnID, rec.Card.Title, rec.Card.ColumnID))
		}
		if rec.Version != card.RemoteVersion {
			problems = append(problems, fmt.Sprintf("%s version: local %d, remote %d", id, card.RemoteVersion, rec.Version))
		}
		delete(remoteByID, id)
	}
	for id := range remoteByID {
		problems = append(problems, fmt.Sprintf("%s exists remotely but was deleted locally", id))
	}
	return problems
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}

// Print formats the result for a terminal.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Mutations: %d (create %d, update %d, move %d, delete %d, errors %d)\n",
		r.Mutations.Count, r.Creates, r.Updates, r.Moves, r.Deletes, r.Errors)
	fmt.Fprintf(w, "Local latency:\n")
	fmt.Fprintf(w, "  Min:           %v\n", r.Mutations.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Mutations.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", r.Mutations.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", r.Mutations.P95)
	fmt.Fprintf(w, "  P99:           %v\n", r.Mutations.P99)
	fmt.Fprintf(w, "  Max:           %v\n", r.Mutations.Max)
	fmt.Fprintf(w, "Remote calls:    %d\n", r.RemoteCalls)
	fmt.Fprintf(w, "Drain:           %v\n", r.Drain.Round(time.Millisecond))
	fmt.Fprintf(w, "Final:           %d cards local, %d remote\n", r.Final.Cards, r.Remote)
	if r.Converged {
		fmt.Fprintf(w, "Converged:       yes\n")
		return
	}
	fmt.Fprintf(w, "Converged:       NO (%d problems)\n", len(r.Problems))
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}
