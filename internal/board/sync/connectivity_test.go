package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peak-flow/boardsync/internal/board/monitor"
	"github.com/peak-flow/boardsync/internal/board/schema"
)

func TestRun_OfflineEditSyncsAfterDebounce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := setup(t, nil, testConfig())
	c1 := h.create(t, "c1")
	h.pass(t)
	if got := h.state(t, c1.ID); got != schema.Clean {
		t.Fatalf("initial state = %s, want clean", got)
	}

	const debounce = 150 * time.Millisecond
	mon := monitor.New(h.engine, monitor.Config{Debounce: debounce}, quiet)
	link := monitor.NewManual()

	runErr := make(chan error, 1)
	monErr := make(chan error, 1)
	go func() { runErr <- h.engine.Run(ctx) }()
	go func() { monErr <- mon.Run(ctx, link) }()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	link.Set(false)
	waitFor("offline", func() bool { return !h.engine.Online() })

	title := "c1 edited offline"
	if _, err := h.store.UpdateCard(ctx, c1.ID, schema.CardPatch{Title: &title}); err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}
	h.engine.Trigger()

	if got := h.store.Pending(); len(got) != 1 || got[0] != c1.ID {
		t.Fatalf("queue = %v, want [%s]", got, c1.ID)
	}
	if got := h.state(t, c1.ID); got != schema.Dirty {
		t.Fatalf("state while offline = %s, want dirty", got)
	}

	link.Set(true)
	time.Sleep(debounce / 3)
	if h.engine.Online() {
		t.Fatal("engine went online before the debounce elapsed")
	}
	if got := h.state(t, c1.ID); got != schema.Dirty {
		t.Fatalf("state during debounce = %s, want dirty", got)
	}

	waitFor("c1 to sync", func() bool {
		return h.state(t, c1.ID) == schema.Clean && len(h.store.Pending()) == 0
	})
	if !h.engine.Online() || !mon.Online() {
		t.Error("engine and monitor should both be online")
	}
	rec, ok := h.remote.Get(c1.ID)
	if !ok || rec.Card.Title != title {
		t.Errorf("remote = %+v, want title %q", rec, title)
	}

	cancel()
	for _, errc := range []chan error{runErr, monErr} {
		if err := <-errc; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	}
}
