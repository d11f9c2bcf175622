package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peak-flow/boardsync/internal/board/db"
	"github.com/peak-flow/boardsync/internal/board/queue"
	"github.com/peak-flow/boardsync/internal/board/schema"
)

// Options configures a Store. The zero value is usable.
type Options struct {
	// Logger receives load warnings. Defaults to stderr with a [store] prefix.
	Logger *log.Logger

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time

	// NewID generates card ids. Defaults to random UUIDs.
	NewID func() string
}

// Store is the local, authoritative copy of one board.
type Store struct {
	mu      sync.RWMutex
	board   *schema.Board
	queue   *queue.Queue
	adapter db.Adapter
	events  *hub

	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// Open loads the board from adapter. Missing or corrupt data starts an
// explicit default board (the default columns), which is saved right away.
// An adapter I/O error is returned as-is so real data is never overwritten.
func Open(ctx context.Context, adapter db.Adapter, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Store{
		queue:   queue.New(),
		adapter: adapter,
		events:  newHub(),
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}

	blob, err := adapter.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}

	var board *schema.Board
	if blob != nil {
		board, err = schema.DecodeBoard(blob)
		if err != nil {
			s.logger.Printf("WARNING: stored board is unreadable, starting from defaults: %v", err)
			board = nil
		}
	}

	if board == nil {
		if blob == nil {
			s.logger.Printf("No saved board found, initializing default columns")
		}
		s.board = schema.NewBoard()
		if err := s.persistLocked(ctx); err != nil {
			s.logger.Printf("WARNING: failed to save default board: %v", err)
		}
		return s, nil
	}

	s.board = board
	s.recoverLocked()
	return s, nil
}

// recoverLocked rebuilds the queue after a load. Syncing cards were cut off
// mid-push and go back to Dirty; anything pending is made sure to be queued.
func (s *Store) recoverLocked() {
	s.queue.Restore(s.board.Queue)
	for _, id := range s.queue.Snapshot() {
		card := s.board.Cards[id]
		if card == nil && s.board.Tombstones[id] == nil {
			s.queue.Remove(id)
		}
		if card != nil && (card.SyncState == schema.Clean || card.SyncState == schema.Failed) {
			s.queue.Remove(id)
		}
	}

	reset := 0
	for _, col := range s.board.Columns {
		for _, id := range col.CardIDs {
			card := s.board.Cards[id]
			if card.SyncState == schema.Syncing {
				card.SyncState = schema.Dirty
				reset++
			}
			if card.SyncState.Pending() {
				s.queue.Enqueue(id)
			}
		}
	}
	for id, ts := range s.board.Tombstones {
		if !ts.Failed {
			s.queue.Enqueue(id)
		}
	}
	if reset > 0 {
		s.logger.Printf("Reset %d interrupted card(s) from syncing to dirty", reset)
	}
}

// persistLocked saves the board. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	s.board.Queue = s.queue.Snapshot()
	s.board.SavedAt = s.now()

	blob, err := s.board.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := s.adapter.Save(ctx, blob); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) emitLocked(typ EventType, card *schema.Card, columnID string) {
	ev := Event{Type: typ, ColumnID: columnID, At: s.now()}
	if card != nil {
		ev.CardID = card.ID
		ev.State = card.SyncState
		ev.Card = card.Clone()
		if ev.ColumnID == "" {
			ev.ColumnID = card.ColumnID
		}
	}
	s.events.publish(ev)
}

// touchLocked records a local mutation: new revision, Dirty, queued. A card
// in Conflict stays in Conflict until it is resolved.
func (s *Store) touchLocked(card *schema.Card) {
	card.Rev++
	card.UpdatedAt = s.now()
	if card.SyncState != schema.Conflict {
		card.SyncState = schema.Dirty
		card.LastError = ""
	}
	s.queue.Enqueue(card.ID)
}

// Subscribe returns a channel of board events with the given buffer. When the
// buffer is full new events are dropped for that subscriber (see Dropped).
// cancel unregisters the subscriber and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Dropped returns how many events were dropped across all subscribers.
func (s *Store) Dropped() uint64 {
	return s.events.dropped.Load()
}

// Close closes the persistence adapter.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter.Close()
}
