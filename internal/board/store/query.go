package store

import (
	"fmt"
	"time"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// Counts summarizes the board for status displays.
type Counts struct {
	Cards      int `json:"cards"`
	Columns    int `json:"columns"`
	Clean      int `json:"clean"`
	Dirty      int `json:"dirty"`
	Syncing    int `json:"syncing"`
	Conflicts  int `json:"conflicts"`
	Failed     int `json:"failed"`
	Tombstones int `json:"tombstones"`
	Queued     int `json:"queued"`
}

// HasPending reports whether anything still waits on the remote authority.
func (c Counts) HasPending() bool {
	return c.Queued > 0
}

// Item is what the sync engine needs to push one queued id: either a live
// card with its position in its column, or a tombstone.
type Item struct {
	Card      *schema.Card
	Position  int
	Tombstone *schema.Tombstone
}

// Snapshot returns a deep copy of the board, including the current queue.
func (s *Store) Snapshot() *schema.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.board.Clone()
	b.Queue = s.queue.Snapshot()
	return b
}

// Card returns a copy of a card.
func (s *Store) Card(id string) (*schema.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card := s.board.Cards[id]
	if card == nil {
		return nil, false
	}
	return card.Clone(), true
}

// Column returns a copy of a column.
func (s *Store) Column(id string) (*schema.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.board.Column(id)
	if col == nil {
		return nil, false
	}
	return col.Clone(), true
}

// Columns returns copies of all columns in board order.
func (s *Store) Columns() []*schema.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*schema.Column, len(s.board.Columns))
	for i, col := range s.board.Columns {
		out[i] = col.Clone()
	}
	return out
}

// ColumnCards returns copies of a column's cards in column order.
func (s *Store) ColumnCards(id string) ([]*schema.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.board.Column(id)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContainer, id)
	}
	out := make([]*schema.Card, 0, len(col.CardIDs))
	for _, cid := range col.CardIDs {
		out = append(out, s.board.Cards[cid].Clone())
	}
	return out, nil
}

// Lookup resolves a queued id for the sync engine.
func (s *Store) Lookup(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if card := s.board.Cards[id]; card != nil {
		pos := 0
		if col := s.board.Column(card.ColumnID); col != nil {
			pos = col.IndexOf(id)
		}
		return Item{Card: card.Clone(), Position: pos}, true
	}
	if ts := s.board.Tombstones[id]; ts != nil {
		t := *ts
		return Item{Tombstone: &t}, true
	}
	return Item{}, false
}

// Pending returns the queued ids in FIFO order.
func (s *Store) Pending() []string {
	return s.queue.Snapshot()
}

// Tombstone returns a copy of the tombstone for id.
func (s *Store) Tombstone(id string) (*schema.Tombstone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts := s.board.Tombstones[id]
	if ts == nil {
		return nil, false
	}
	t := *ts
	return &t, true
}

// Conflicts returns the cards held in Conflict, in board order.
func (s *Store) Conflicts() []*schema.Card {
	return s.inState(schema.Conflict)
}

// Failed returns the cards that exhausted their retry budget, in board order.
func (s *Store) Failed() []*schema.Card {
	return s.inState(schema.Failed)
}

func (s *Store) inState(state schema.SyncState) []*schema.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schema.Card
	for _, col := range s.board.Columns {
		for _, id := range col.CardIDs {
			if card := s.board.Cards[id]; card.SyncState == state {
				out = append(out, card.Clone())
			}
		}
	}
	return out
}

// Counts tallies cards by sync state.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{
		Cards:      len(s.board.Cards),
		Columns:    len(s.board.Columns),
		Tombstones: len(s.board.Tombstones),
		Queued:     s.queue.Len(),
	}
	for _, card := range s.board.Cards {
		switch card.SyncState {
		case schema.Clean:
			c.Clean++
		case schema.Dirty:
			c.Dirty++
		case schema.Syncing:
			c.Syncing++
		case schema.Conflict:
			c.Conflicts++
		case schema.Failed:
			c.Failed++
		}
	}
	return c
}

// HasData reports whether the board holds any cards or pending deletions.
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.board.Cards) > 0 || len(s.board.Tombstones) > 0
}

// LastSyncedAt returns when the remote authority last accepted a change.
func (s *Store) LastSyncedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.board.LastSyncedAt == nil {
		return time.Time{}, false
	}
	return *s.board.LastSyncedAt, true
}
