package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// EventType identifies what changed.
type EventType string

const (
	CardCreated  EventType = "card_created"
	CardUpdated  EventType = "card_updated"
	CardMoved    EventType = "card_moved"
	CardDeleted  EventType = "card_deleted"
	StateChanged EventType = "state_changed"
	ColumnAdded  EventType = "column_added"
)

// Event describes one change to the board. Card is a copy and is nil for
// CardDeleted and ColumnAdded.
type Event struct {
	Type     EventType
	CardID   string
	ColumnID string
	State    schema.SyncState
	Card     *schema.Card
	At       time.Time
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

type hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	next    int
	dropped atomic.Uint64
}

func newHub() *hub {
	return &hub{subs: make(map[int]*subscriber)}
}

// subscribe registers a channel with the given buffer. The returned cancel
// func unregisters and closes it; calling it twice is safe.
func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}
