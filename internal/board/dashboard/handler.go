package dashboard

import (
	"context"
	"log"

	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
	bsync "github.com/peak-flow/boardsync/internal/board/sync"
)

// BoardSource is the part of *store.Store the dashboard reads.
type BoardSource interface {
	Subscribe(buffer int) (<-chan store.Event, func())
	Counts() store.Counts
}

// StatusSource is the part of *sync.Engine the dashboard reads.
type StatusSource interface {
	Subscribe(buffer int) (<-chan bsync.Status, func())
	Status() bsync.Status
}

// CardUpdateData contains card change information
type CardUpdateData struct {
	CardID    string           `json:"card_id"`
	Action    string           `json:"action"` // created, updated, moved, deleted, state
	ColumnID  string           `json:"column_id,omitempty"`
	Title     string           `json:"title,omitempty"`
	SyncState schema.SyncState `json:"sync_state"`
	Rev       int64            `json:"rev,omitempty"`
}

// ConflictData describes a card held in Conflict
type ConflictData struct {
	CardID        string             `json:"card_id"`
	Title         string             `json:"title"`
	LocalRev      int64              `json:"local_rev"`
	ServerVersion int64              `json:"server_version"`
	Remote        *schema.RemoteCard `json:"remote,omitempty"`
	// DeletedRemotely is set when the authority no longer has the card.
	DeletedRemotely bool `json:"deleted_remotely"`
}

// SyncStatusData is the engine status plus its one-word label
type SyncStatusData struct {
	bsync.Status
	Label string `json:"label"`
}

// Handler subscribes to the store and the sync engine and formats their
// events as dashboard messages.
type Handler struct {
	server *Server
	board  BoardSource
	status StatusSource
	logger *log.Logger
}

// NewHandler creates a handler feeding server. status may be nil when no
// engine is running.
func NewHandler(server *Server, board BoardSource, status StatusSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{server: server, board: board, status: status, logger: logger}
	server.SetGreeting(h.greeting)
	return h
}

// Start subscribes synchronously, then forwards events in the background
// until ctx is cancelled. The returned channel is closed when it stops.
func (h *Handler) Start(ctx context.Context) <-chan struct{} {
	events, cancelEvents := h.board.Subscribe(256)

	var statuses <-chan bsync.Status
	cancelStatus := func() {}
	if h.status != nil {
		statuses, cancelStatus = h.status.Subscribe(16)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancelEvents()
		defer cancelStatus()
		h.forward(ctx, events, statuses)
	}()
	return done
}

// Run forwards events until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	<-h.Start(ctx)
	return ctx.Err()
}

func (h *Handler) forward(ctx context.Context, events <-chan store.Event, statuses <-chan bsync.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.OnEvent(ev)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			h.OnStatus(st)
		}
	}
}

// OnEvent handles one store event
func (h *Handler) OnEvent(ev store.Event) {
	if ev.Type == store.ColumnAdded {
		h.broadcastStats()
		return
	}

	data := CardUpdateData{
		CardID:    ev.CardID,
		Action:    action(ev.Type),
		ColumnID:  ev.ColumnID,
		SyncState: ev.State,
	}
	if ev.Card != nil {
		data.Title = ev.Card.Title
		data.Rev = ev.Card.Rev
	}
	h.send(MessageTypeCardUpdate, data)

	if ev.Card != nil && ev.State == schema.Conflict {
		h.send(MessageTypeConflict, ConflictData{
			CardID:          ev.Card.ID,
			Title:           ev.Card.Title,
			LocalRev:        ev.Card.Rev,
			ServerVersion:   ev.Card.ServerVersion,
			Remote:          ev.Card.Remote,
			DeletedRemotely: ev.Card.Remote == nil,
		})
	}

	h.broadcastStats()
}

// OnStatus handles an engine status change
func (h *Handler) OnStatus(st bsync.Status) {
	h.send(MessageTypeSyncStatus, SyncStatusData{Status: st, Label: st.Label()})
}

func action(typ store.EventType) string {
	switch typ {
	case store.CardCreated:
		return "created"
	case store.CardUpdated:
		return "updated"
	case store.CardMoved:
		return "moved"
	case store.CardDeleted:
		return "deleted"
	case store.StateChanged:
		return "state"
	default:
		return string(typ)
	}
}

func (h *Handler) send(typ MessageType, data interface{}) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Printf("WARNING: %v", err)
		return
	}
	h.server.Broadcast(msg)
}

// broadcastStats sends current counts to all clients
func (h *Handler) broadcastStats() {
	h.send(MessageTypeBoardStats, h.board.Counts())
}

// greeting is what a newly connected client receives first.
func (h *Handler) greeting() []Message {
	var out []Message
	if msg, err := NewMessage(MessageTypeBoardStats, h.board.Counts()); err == nil {
		out = append(out, msg)
	}
	if h.status != nil {
		st := h.status.Status()
		if msg, err := NewMessage(MessageTypeSyncStatus, SyncStatusData{Status: st, Label: st.Label()}); err == nil {
			out = append(out, msg)
		}
	}
	return out
}
