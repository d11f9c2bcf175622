package loadtest

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peak-flow/boardsync/internal/board/db"
)

// TestRun_Small verifies that a small concurrent run converges.
func TestRun_Small(t *testing.T) {
	opts := DefaultOptions()
	opts.Mutators = 4
	opts.OpsPerMutator = 25
	opts.MinLatency = 0
	opts.MaxLatency = 2 * time.Millisecond

	result, err := Run(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Mutations.Count != 100 {
		t.Errorf("Expected 100 mutations, got %d", result.Mutations.Count)
	}
	if result.Errors > 0 {
		t.Errorf("Got %d mutation errors", result.Errors)
	}
	if !result.Converged {
		t.Fatalf("Run did not converge: %v", result.Problems)
	}
	if result.Final.Cards != result.Remote {
		t.Errorf("Local has %d cards, remote %d", result.Final.Cards, result.Remote)
	}
	if result.Final.Queued != 0 {
		t.Errorf("Queue not empty: %d", result.Final.Queued)
	}

	var buf bytes.Buffer
	result.Print(&buf)
	if !strings.Contains(buf.String(), "Converged:       yes") {
		t.Errorf("Print output missing convergence line:\n%s", buf.String())
	}
	t.Logf("\n%s", buf.String())
}

// TestRun_FlakyNetwork runs with a high failure rate and a persistent adapter.
func TestRun_FlakyNetwork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping flaky-network load test in short mode")
	}

	adapter, err := db.NewFile(filepath.Join(t.TempDir(), "board.json"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Failed to create file adapter: %v", err)
	}

	opts := DefaultOptions()
	opts.Mutators = 6
	opts.OpsPerMutator = 30
	opts.FailureRate = 0.3
	opts.Adapter = adapter

	result, err := Run(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Converged {
		t.Fatalf("Run did not converge: %v", result.Problems)
	}
	if result.RemoteCalls <= result.Creates {
		t.Errorf("Expected retries to add remote calls beyond %d creates, got %d", result.Creates, result.RemoteCalls)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", stats.P50)
	}
	if stats.P99 != 100*time.Millisecond {
		t.Errorf("P99 = %v, want 100ms", stats.P99)
	}
	if stats.Count != 100 {
		t.Errorf("Count = %d", stats.Count)
	}

	if empty := computeLatencyStats(nil); empty.Count != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}
