package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/schema"
)

func testOptions() Options {
	n := 0
	clock := time.Date(2026, 1, 10, 7, 36, 29, 0, time.UTC)
	return Options{
		Logger: log.New(io.Discard, "", 0),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			n++
			return fmt.Sprintf("c%d", n)
		},
	}
}

func openTestStore(t *testing.T) (*Store, *db.Memory) {
	t.Helper()
	mem := db.NewMemory(log.New(io.Discard, "", 0))
	s, err := Open(context.Background(), mem, testOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s, mem
}

func strPtr(s string) *string { return &s }

func create(t *testing.T, s *Store, column, title string) *schema.Card {
	t.Helper()
	card, err := s.CreateCard(context.Background(), column, schema.CardInput{Title: title})
	if err != nil {
		t.Fatalf("failed to create %q: %v", title, err)
	}
	return card
}

func wantPending(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	got := s.Pending()
	if len(ids) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, ids) {
		t.Errorf("queue = %v, want %v", got, ids)
	}
}

func wantState(t *testing.T, s *Store, id string, want schema.SyncState) *schema.Card {
	t.Helper()
	card, ok := s.Card(id)
	if !ok {
		t.Fatalf("card %s not found", id)
	}
	if card.SyncState != want {
		t.Errorf("%s state = %s, want %s", id, card.SyncState, want)
	}
	return card
}

// columnsHolding returns every column that lists id.
func columnsHolding(s *Store, id string) []string {
	var out []string
	for _, col := range s.Columns() {
		if col.IndexOf(id) >= 0 {
			out = append(out, col.ID)
		}
	}
	return out
}

func TestOpenInitializesDefaultBoard(t *testing.T) {
	s, mem := openTestStore(t)

	var ids []string
	for _, col := range s.Columns() {
		ids = append(ids, col.ID)
	}
	if want := []string{"todo", "doing", "done"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("columns = %v, want %v", ids, want)
	}
	if s.HasData() {
		t.Error("fresh board reports data")
	}
	if mem.Saves() != 1 {
		t.Errorf("saves = %d, want the default board saved once", mem.Saves())
	}
}

func TestOpenCorruptDataFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory(log.New(io.Discard, "", 0))
	s, err := Open(ctx, mem, testOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	create(t, s, "todo", "lost")

	mem.Corrupt()
	s, err = Open(ctx, mem, testOptions())
	if err != nil {
		t.Fatalf("Open on corrupt data failed: %v", err)
	}
	if s.HasData() {
		t.Error("corrupt data should reset to an empty board")
	}
	if n := len(s.Columns()); n != 3 {
		t.Errorf("columns = %d, want 3", n)
	}
}

type brokenAdapter struct{ db.Memory }

func (b *brokenAdapter) Load(ctx context.Context) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func TestOpenRefusesOnReadError(t *testing.T) {
	if _, err := Open(context.Background(), &brokenAdapter{}, testOptions()); err == nil {
		t.Error("expected Open to fail when the adapter cannot read")
	}
}

func TestCreateCardScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "c1")
	if card.SyncState != schema.Dirty || card.Rev != 1 {
		t.Fatalf("new card = %s rev %d, want dirty rev 1", card.SyncState, card.Rev)
	}
	wantPending(t, s, card.ID)

	state, err := s.MarkSynced(ctx, card.ID, card.Rev, 2)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if state != schema.Clean {
		t.Errorf("state = %s, want clean", state)
	}
	wantPending(t, s)

	if got := wantState(t, s, card.ID, schema.Clean); got.RemoteVersion != 2 {
		t.Errorf("RemoteVersion = %d, want 2", got.RemoteVersion)
	}
	if _, ok := s.LastSyncedAt(); !ok {
		t.Error("LastSyncedAt not recorded")
	}
}

func TestCreateCardErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	if _, err := s.CreateCard(ctx, "backlog", schema.CardInput{Title: "x"}); !errors.Is(err, ErrInvalidContainer) {
		t.Errorf("unknown column: got %v, want ErrInvalidContainer", err)
	}
	if _, err := s.CreateCard(ctx, "todo", schema.CardInput{Title: "   "}); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("blank title: got %v, want ErrInvalidCard", err)
	}
	if s.HasData() {
		t.Error("rejected creates left data behind")
	}
	wantPending(t, s)
}

func TestUpdateCard(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "draft")
	if _, err := s.MarkSynced(ctx, card.ID, card.Rev, 1); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	updated, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Title: strPtr("final"), DueAt: &due})
	if err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}
	if updated.Title != "final" || updated.DueAt == nil || !updated.DueAt.Equal(due) {
		t.Errorf("updated = %q due %v", updated.Title, updated.DueAt)
	}
	if updated.SyncState != schema.Dirty || updated.Rev != 2 {
		t.Errorf("updated = %s rev %d, want dirty rev 2", updated.SyncState, updated.Rev)
	}
	if !updated.UpdatedAt.After(card.UpdatedAt) {
		t.Error("UpdatedAt did not advance")
	}
	wantPending(t, s, card.ID)

	if _, err := s.UpdateCard(ctx, "nope", schema.CardPatch{Title: strPtr("x")}); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("unknown card: got %v, want ErrEntityNotFound", err)
	}
	if _, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Title: strPtr("")}); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("empty title: got %v, want ErrInvalidCard", err)
	}
	if got, _ := s.Card(card.ID); got.Title != "final" {
		t.Errorf("rejected patch changed title to %q", got.Title)
	}

	same, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{})
	if err != nil {
		t.Fatalf("empty patch failed: %v", err)
	}
	if same.Rev != 2 {
		t.Errorf("empty patch bumped rev to %d", same.Rev)
	}
}

func TestRepeatedMutationsQueueOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "a")
	for i := 0; i < 10; i++ {
		if _, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Description: strPtr(fmt.Sprint(i))}); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
	}
	if _, err := s.MoveCard(ctx, card.ID, "todo", "done", 0); err != nil {
		t.Fatalf("MoveCard failed: %v", err)
	}
	wantPending(t, s, card.ID)

	final, _ := s.Card(card.ID)
	state, err := s.MarkSynced(ctx, card.ID, final.Rev, 7)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if state != schema.Clean {
		t.Errorf("state = %s, want clean", state)
	}
}

func TestMoveCard(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, create(t, s, "todo", fmt.Sprint("card ", i)).ID)
	}

	tests := []struct {
		name    string
		id      string
		from    string
		to      string
		index   int
		wantErr error
		wantCol []string
	}{
		{"to other column", ids[0], "todo", "doing", 0, nil, []string{ids[0]}},
		{"index clamped high", ids[1], "todo", "doing", 99, nil, []string{ids[0], ids[1]}},
		{"index clamped low", ids[2], "todo", "doing", -5, nil, []string{ids[2], ids[0], ids[1]}},
		{"within column", ids[2], "doing", "doing", 2, nil, []string{ids[0], ids[1], ids[2]}},
		{"wrong source column", ids[0], "todo", "done", 0, ErrInvalidContainer, nil},
		{"unknown target", ids[0], "doing", "archive", 0, ErrInvalidContainer, nil},
		{"unknown card", "ghost", "doing", "done", 0, ErrEntityNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, err := s.MoveCard(ctx, tt.id, tt.from, tt.to, tt.index)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MoveCard failed: %v", err)
			}
			if card.ColumnID != tt.to {
				t.Errorf("ColumnID = %s, want %s", card.ColumnID, tt.to)
			}
			col, ok := s.Column(tt.to)
			if !ok {
				t.Fatalf("column %s missing", tt.to)
			}
			if !reflect.DeepEqual(col.CardIDs, tt.wantCol) {
				t.Errorf("%s = %v, want %v", tt.to, col.CardIDs, tt.wantCol)
			}
		})
	}

	if todo, _ := s.Column("todo"); len(todo.CardIDs) != 0 {
		t.Errorf("todo = %v, want empty", todo.CardIDs)
	}
}

func TestMoveKeepsCardInExactlyOneColumn(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	rng := rand.New(rand.NewSource(1))
	cols := []string{"todo", "doing", "done"}

	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, create(t, s, cols[i%3], fmt.Sprint(i)).ID)
	}

	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		card, _ := s.Card(id)
		if _, err := s.MoveCard(ctx, id, card.ColumnID, cols[rng.Intn(3)], rng.Intn(10)-2); err != nil {
			t.Fatalf("move %d failed: %v", i, err)
		}
	}

	for _, id := range ids {
		card, _ := s.Card(id)
		if holding := columnsHolding(s, id); !reflect.DeepEqual(holding, []string{card.ColumnID}) {
			t.Errorf("%s held by %v, card says %s", id, holding, card.ColumnID)
		}
	}
	if err := s.Snapshot().Validate(); err != nil {
		t.Errorf("board invalid: %v", err)
	}
}

func TestMoveIsAtomicForConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	card := create(t, s, "todo", "hot")

	done := make(chan struct{})
	go func() {
		defer close(done)
		from := "todo"
		for i := 0; i < 200; i++ {
			to := "doing"
			if from == "doing" {
				to = "todo"
			}
			if _, err := s.MoveCard(ctx, card.ID, from, to, 0); err != nil {
				t.Errorf("move: %v", err)
				return
			}
			from = to
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		b := s.Snapshot()
		n := 0
		for _, col := range b.Columns {
			if col.IndexOf(card.ID) >= 0 {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("card visible in %d columns", n)
		}
	}
}

func TestDeleteCardLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "bye")
	if _, err := s.MarkSynced(ctx, card.ID, card.Rev, 4); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	wantPending(t, s)

	if err := s.DeleteCard(ctx, card.ID); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}
	if _, ok := s.Card(card.ID); ok {
		t.Error("deleted card still readable")
	}
	if cols := columnsHolding(s, card.ID); len(cols) != 0 {
		t.Errorf("deleted card still listed in %v", cols)
	}

	ts, ok := s.Tombstone(card.ID)
	if !ok {
		t.Fatal("no tombstone")
	}
	if ts.RemoteVersion != 4 {
		t.Errorf("tombstone RemoteVersion = %d, want 4", ts.RemoteVersion)
	}
	wantPending(t, s, card.ID)

	item, ok := s.Lookup(card.ID)
	if !ok || item.Card != nil || item.Tombstone == nil {
		t.Errorf("Lookup = %+v %v, want tombstone only", item, ok)
	}

	if err := s.PurgeTombstone(ctx, card.ID); err != nil {
		t.Fatalf("PurgeTombstone failed: %v", err)
	}
	wantPending(t, s)
	if _, ok := s.Tombstone(card.ID); ok {
		t.Error("tombstone survived purge")
	}

	if err := s.DeleteCard(ctx, card.ID); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("second delete: got %v, want ErrEntityNotFound", err)
	}
}

func TestDeleteWhileSyncing(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "racing")
	if !s.MarkSyncing(card.ID, card.Rev) {
		t.Fatal("MarkSyncing = false")
	}
	if err := s.DeleteCard(ctx, card.ID); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}

	// The in-flight push lands after the delete.
	if _, err := s.MarkSynced(ctx, card.ID, card.Rev, 1); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("MarkSynced: got %v, want ErrEntityNotFound", err)
	}

	ts, ok := s.Tombstone(card.ID)
	if !ok {
		t.Fatal("no tombstone")
	}
	if ts.RemoteVersion != 1 {
		t.Errorf("tombstone RemoteVersion = %d, want 1", ts.RemoteVersion)
	}
	wantPending(t, s, card.ID)
	if _, ok := s.Card(card.ID); ok {
		t.Error("ghost card after late MarkSynced")
	}
}

func TestMarkSyncedRevisionRules(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "v1")
	if !s.MarkSyncing(card.ID, 1) {
		t.Fatal("MarkSyncing = false")
	}
	if s.MarkSyncing(card.ID, 1) {
		t.Error("MarkSyncing twice = true")
	}

	// Edited while the push of rev 1 was in flight.
	if _, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Title: strPtr("v2")}); err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}

	state, err := s.MarkSynced(ctx, card.ID, 1, 10)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if state != schema.Dirty {
		t.Errorf("state = %s, want dirty", state)
	}
	wantPending(t, s, card.ID)
	if got, _ := s.Card(card.ID); got.RemoteVersion != 10 {
		t.Errorf("RemoteVersion = %d, want rebased on 10", got.RemoteVersion)
	}

	state, err = s.MarkSynced(ctx, card.ID, 5, 11)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if state != schema.Conflict {
		t.Errorf("state = %s, want conflict", state)
	}
	wantPending(t, s, card.ID)
}

func TestMarkConflictAndResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("keep local", func(t *testing.T) {
		s, _ := openTestStore(t)
		card := create(t, s, "todo", "mine")

		remote := &schema.RemoteCard{ID: card.ID, Title: "theirs", ColumnID: "done"}
		if err := s.MarkConflict(ctx, card.ID, 9, remote); err != nil {
			t.Fatalf("MarkConflict failed: %v", err)
		}

		if got := wantState(t, s, card.ID, schema.Conflict); got.Title != "mine" {
			t.Errorf("local title overwritten with %q", got.Title)
		}
		wantPending(t, s, card.ID)
		if n := len(s.Conflicts()); n != 1 {
			t.Errorf("conflicts = %d, want 1", n)
		}

		// Local edits keep the card in Conflict.
		edited, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Title: strPtr("mine v2")})
		if err != nil {
			t.Fatalf("UpdateCard failed: %v", err)
		}
		if edited.SyncState != schema.Conflict {
			t.Errorf("edited state = %s, want conflict", edited.SyncState)
		}

		resolved, err := s.ResolveConflict(ctx, card.ID, KeepLocal)
		if err != nil {
			t.Fatalf("ResolveConflict failed: %v", err)
		}
		if resolved.SyncState != schema.Dirty || resolved.RemoteVersion != 9 {
			t.Errorf("resolved = %s v%d, want dirty v9", resolved.SyncState, resolved.RemoteVersion)
		}
		if resolved.Title != "mine v2" || resolved.Remote != nil {
			t.Errorf("resolved = %q remote %+v", resolved.Title, resolved.Remote)
		}
		wantPending(t, s, card.ID)
	})

	t.Run("take remote", func(t *testing.T) {
		s, _ := openTestStore(t)
		card := create(t, s, "todo", "mine")

		remote := &schema.RemoteCard{ID: card.ID, Title: "theirs", ColumnID: "done", Position: 0}
		if err := s.MarkConflict(ctx, card.ID, 9, remote); err != nil {
			t.Fatalf("MarkConflict failed: %v", err)
		}

		resolved, err := s.ResolveConflict(ctx, card.ID, TakeRemote)
		if err != nil {
			t.Fatalf("ResolveConflict failed: %v", err)
		}
		if resolved.SyncState != schema.Clean || resolved.RemoteVersion != 9 {
			t.Errorf("resolved = %s v%d, want clean v9", resolved.SyncState, resolved.RemoteVersion)
		}
		if resolved.Title != "theirs" || resolved.ColumnID != "done" {
			t.Errorf("resolved = %q in %s", resolved.Title, resolved.ColumnID)
		}
		wantPending(t, s)
		if cols := columnsHolding(s, card.ID); !reflect.DeepEqual(cols, []string{"done"}) {
			t.Errorf("held by %v, want [done]", cols)
		}
	})

	t.Run("take remote deletion", func(t *testing.T) {
		s, _ := openTestStore(t)
		card := create(t, s, "todo", "mine")
		if err := s.MarkConflict(ctx, card.ID, 3, nil); err != nil {
			t.Fatalf("MarkConflict failed: %v", err)
		}

		resolved, err := s.ResolveConflict(ctx, card.ID, TakeRemote)
		if err != nil {
			t.Fatalf("ResolveConflict failed: %v", err)
		}
		if resolved != nil {
			t.Errorf("resolved = %+v, want nil", resolved)
		}
		if s.HasData() {
			t.Error("remote deletion left a card or tombstone behind")
		}
		wantPending(t, s)
	})

	t.Run("not in conflict", func(t *testing.T) {
		s, _ := openTestStore(t)
		card := create(t, s, "todo", "fine")
		if _, err := s.ResolveConflict(ctx, card.ID, KeepLocal); !errors.Is(err, ErrNoConflict) {
			t.Errorf("got %v, want ErrNoConflict", err)
		}
	})
}

func TestMarkFailedAndRequeue(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	a := create(t, s, "todo", "a")
	b := create(t, s, "todo", "b")

	// Stale revision: ignored.
	if _, err := s.UpdateCard(ctx, b.ID, schema.CardPatch{Title: strPtr("b2")}); err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}
	if err := s.MarkFailed(ctx, b.ID, 1, "too many retries"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	wantState(t, s, b.ID, schema.Dirty)

	if err := s.MarkFailed(ctx, a.ID, 1, "too many retries"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if got := wantState(t, s, a.ID, schema.Failed); got.LastError != "too many retries" {
		t.Errorf("LastError = %q", got.LastError)
	}
	wantPending(t, s, b.ID)
	if n := len(s.Failed()); n != 1 {
		t.Errorf("failed = %d, want 1", n)
	}

	n, err := s.RequeueFailed(ctx)
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}
	wantPending(t, s, b.ID, a.ID)
	wantState(t, s, a.ID, schema.Dirty)
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	s, mem := openTestStore(t)

	mem.FailSaves(errors.New("disk full"))
	card, err := s.CreateCard(ctx, "todo", schema.CardInput{Title: "kept in memory"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if card == nil {
		t.Fatal("card should be returned alongside the persistence error")
	}
	wantState(t, s, card.ID, schema.Dirty)
	wantPending(t, s, card.ID)

	mem.FailSaves(nil)
	if _, err := s.UpdateCard(ctx, card.ID, schema.CardPatch{Description: strPtr("saved now")}); err != nil {
		t.Errorf("UpdateCard after recovery failed: %v", err)
	}
}

func TestReloadRestoresBoardAndQueue(t *testing.T) {
	ctx := context.Background()
	s, mem := openTestStore(t)

	a := create(t, s, "todo", "a")
	b := create(t, s, "doing", "b")
	c := create(t, s, "done", "c")
	if _, err := s.MarkSynced(ctx, c.ID, c.Rev, 1); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := s.DeleteCard(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}
	if !s.MarkSyncing(b.ID, b.Rev) {
		t.Fatal("MarkSyncing = false")
	}
	if _, err := s.UpdateCard(ctx, a.ID, schema.CardPatch{Title: strPtr("a2")}); err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}

	reopened, err := Open(ctx, mem, testOptions())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	wantPending(t, reopened, a.ID, b.ID, c.ID)
	// An interrupted push is retried.
	wantState(t, reopened, b.ID, schema.Dirty)
	if got, _ := reopened.Card(a.ID); got.Title != "a2" {
		t.Errorf("a title = %q, want a2", got.Title)
	}
	if _, ok := reopened.Tombstone(c.ID); !ok {
		t.Error("tombstone lost on reload")
	}
}

func TestAddColumn(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	col, err := s.AddColumn(ctx, "review", "Review")
	if err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	if col.ID != "review" {
		t.Errorf("ID = %s, want review", col.ID)
	}

	if _, err := s.AddColumn(ctx, "review", "Again"); !errors.Is(err, ErrDuplicateContainer) {
		t.Errorf("duplicate: got %v, want ErrDuplicateContainer", err)
	}
	if _, err := s.AddColumn(ctx, "blank", ""); !errors.Is(err, ErrInvalidContainer) {
		t.Errorf("blank title: got %v, want ErrInvalidContainer", err)
	}

	create(t, s, "review", "check")
	cards, err := s.ColumnCards("review")
	if err != nil {
		t.Fatalf("ColumnCards failed: %v", err)
	}
	if len(cards) != 1 {
		t.Errorf("review holds %d cards, want 1", len(cards))
	}
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	a := create(t, s, "todo", "a")
	b := create(t, s, "todo", "b")
	c := create(t, s, "todo", "c")
	if _, err := s.MarkSynced(ctx, a.ID, a.Rev, 1); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := s.MarkConflict(ctx, b.ID, 2, nil); err != nil {
		t.Fatalf("MarkConflict failed: %v", err)
	}
	if err := s.DeleteCard(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}

	counts := s.Counts()
	want := Counts{Cards: 2, Columns: 3, Clean: 1, Conflicts: 1, Tombstones: 1, Queued: 2}
	if counts != want {
		t.Errorf("Counts = %+v, want %+v", counts, want)
	}
	if !counts.HasPending() {
		t.Error("HasPending = false")
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	events, cancel := s.Subscribe(8)
	card := create(t, s, "todo", "watched")
	if _, err := s.MoveCard(ctx, card.ID, "todo", "done", 0); err != nil {
		t.Fatalf("MoveCard failed: %v", err)
	}
	if err := s.DeleteCard(ctx, card.ID); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}

	for _, typ := range []EventType{CardCreated, CardMoved, CardDeleted} {
		select {
		case ev := <-events:
			if ev.Type != typ || ev.CardID != card.ID {
				t.Errorf("event = %s %s, want %s %s", ev.Type, ev.CardID, typ, card.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}

	cancel()
	cancel()
	if _, open := <-events; open {
		t.Error("cancel should close the channel")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	s, _ := openTestStore(t)

	_, cancel := s.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		create(t, s, "todo", fmt.Sprint(i))
	}
	if got := s.Dropped(); got != 4 {
		t.Errorf("Dropped = %d, want 4", got)
	}
	if got := s.Counts().Cards; got != 5 {
		t.Errorf("cards = %d, want 5: a full subscriber never blocks mutations", got)
	}
}

func TestMarkRetry(t *testing.T) {
	s, _ := openTestStore(t)

	card := create(t, s, "todo", "flaky")
	if s.MarkRetry(card.ID, card.Rev, "not syncing") {
		t.Error("MarkRetry on a dirty card = true")
	}
	if !s.MarkSyncing(card.ID, card.Rev) {
		t.Fatal("MarkSyncing = false")
	}
	if !s.MarkRetry(card.ID, card.Rev, "timeout") {
		t.Fatal("MarkRetry = false")
	}

	if got := wantState(t, s, card.ID, schema.Dirty); got.LastError != "timeout" {
		t.Errorf("LastError = %q, want timeout", got.LastError)
	}
	wantPending(t, s, card.ID)
}
