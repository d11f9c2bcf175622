package store

import (
	"context"
	"fmt"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// Resolution picks a side of a conflict.
type Resolution int

const (
	// KeepLocal adopts the server version as the new base and pushes the
	// local payload again.
	KeepLocal Resolution = iota
	// TakeRemote replaces the local payload with the authority's copy.
	TakeRemote
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep-local"
	case TakeRemote:
		return "take-remote"
	default:
		return "unknown"
	}
}

// MarkSyncing flags a Dirty card as in flight for revision rev. It returns
// false when the card is gone, not Dirty, or has moved past rev.
func (s *Store) MarkSyncing(id string, rev int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil || card.Rev != rev || card.SyncState != schema.Dirty {
		return false
	}
	card.SyncState = schema.Syncing
	s.emitLocked(StateChanged, card, "")
	return true
}

// MarkRetry returns an in-flight card to Dirty after a push failed in a way
// worth retrying. It keeps the card queued and records reason.
func (s *Store) MarkRetry(id string, rev int64, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil || card.SyncState != schema.Syncing {
		return false
	}
	card.SyncState = schema.Dirty
	if card.Rev == rev {
		card.LastError = reason
	}
	s.queue.Enqueue(id)
	s.emitLocked(StateChanged, card, "")
	return true
}

// MarkSynced records that the remote authority accepted revision
// confirmedRev as remoteVersion, and returns the resulting state:
//
//   - confirmedRev == Rev: Clean, removed from the queue
//   - confirmedRev < Rev: Dirty and still queued, rebased on remoteVersion
//   - confirmedRev > Rev: Conflict
//
// A deleted card only has its tombstone rebased; ErrEntityNotFound is
// returned so the caller leaves the deletion to the tombstone.
func (s *Store) MarkSynced(ctx context.Context, id string, confirmedRev, remoteVersion int64) (schema.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		if ts := s.board.Tombstones[id]; ts != nil {
			ts.RemoteVersion = remoteVersion
			return schema.Clean, fmt.Errorf("%w: %s was deleted during sync", ErrEntityNotFound, id)
		}
		return schema.Clean, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	switch {
	case confirmedRev == card.Rev:
		card.SyncState = schema.Clean
		card.RemoteVersion = remoteVersion
		card.LastError = ""
		card.Remote = nil
		card.ServerVersion = 0
		s.queue.Remove(id)
		now := s.now()
		s.board.LastSyncedAt = &now
	case confirmedRev < card.Rev:
		card.RemoteVersion = remoteVersion
		if card.SyncState == schema.Syncing {
			card.SyncState = schema.Dirty
		}
		s.queue.Enqueue(id)
	default:
		card.SyncState = schema.Conflict
		card.LastError = fmt.Sprintf("confirmed revision %d is ahead of local revision %d", confirmedRev, card.Rev)
		s.queue.Enqueue(id)
	}

	err := s.persistLocked(ctx)
	s.emitLocked(StateChanged, card, "")
	return card.SyncState, err
}

// MarkConflict holds a card in Conflict with the authority's copy attached.
// remote is nil when the card no longer exists remotely. The card stays
// queued until ResolveConflict.
func (s *Store) MarkConflict(ctx context.Context, id string, serverVersion int64, remote *schema.RemoteCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	card.SyncState = schema.Conflict
	card.ServerVersion = serverVersion
	card.Remote = remote.Clone()
	if remote == nil {
		card.LastError = "card was deleted remotely"
	} else {
		card.LastError = fmt.Sprintf("remote version %d does not match base version %d", serverVersion, card.RemoteVersion)
	}
	s.queue.Enqueue(id)

	err := s.persistLocked(ctx)
	s.emitLocked(StateChanged, card, "")
	return err
}

// MarkFailed demotes a card (or a tombstone) whose push exhausted its retry
// budget and drops it from the queue. For cards it only applies if rev is
// still the current revision: a newer edit gets a fresh budget.
func (s *Store) MarkFailed(ctx context.Context, id string, rev int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		ts := s.board.Tombstones[id]
		if ts == nil {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
		ts.Failed = true
		ts.LastError = reason
		s.queue.Remove(id)
		return s.persistLocked(ctx)
	}
	if card.Rev != rev {
		return nil
	}

	card.SyncState = schema.Failed
	card.LastError = reason
	s.queue.Remove(id)

	err := s.persistLocked(ctx)
	s.emitLocked(StateChanged, card, "")
	return err
}

// PurgeTombstone forgets a deletion the remote authority has accepted.
func (s *Store) PurgeTombstone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board.Tombstones[id] == nil {
		return fmt.Errorf("%w: no tombstone for %s", ErrEntityNotFound, id)
	}
	delete(s.board.Tombstones, id)
	s.queue.Remove(id)
	now := s.now()
	s.board.LastSyncedAt = &now

	return s.persistLocked(ctx)
}

// ResolveConflict settles a card held in Conflict.
//
// KeepLocal rebases the card on the server version and queues it again.
// TakeRemote applies the stored remote payload and marks the card Clean; if
// the card was deleted remotely it is removed locally without a tombstone.
func (s *Store) ResolveConflict(ctx context.Context, id string, res Resolution) (*schema.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if card.SyncState != schema.Conflict {
		return nil, fmt.Errorf("%w: %s is %s", ErrNoConflict, id, card.SyncState)
	}

	switch res {
	case KeepLocal:
		card.RemoteVersion = card.ServerVersion
		card.Remote = nil
		card.ServerVersion = 0
		card.SyncState = schema.Dirty
		card.LastError = ""
		card.Rev++
		card.UpdatedAt = s.now()
		s.queue.Enqueue(id)

	case TakeRemote:
		if card.Remote == nil {
			if col := s.board.Column(card.ColumnID); col != nil {
				col.Remove(id)
			}
			delete(s.board.Cards, id)
			s.queue.Remove(id)
			err := s.persistLocked(ctx)
			s.events.publish(Event{Type: CardDeleted, CardID: id, ColumnID: card.ColumnID, At: s.now()})
			return nil, err
		}
		s.applyRemoteLocked(card, card.Remote)
		card.RemoteVersion = card.ServerVersion
		card.Remote = nil
		card.ServerVersion = 0
		card.SyncState = schema.Clean
		card.LastError = ""
		card.Rev++
		s.queue.Remove(id)

	default:
		return nil, fmt.Errorf("unknown resolution %d", res)
	}

	err := s.persistLocked(ctx)
	s.emitLocked(CardUpdated, card, "")
	return card.Clone(), err
}

// applyRemoteLocked copies the remote payload onto card. The remote column is
// honoured only if it exists locally.
func (s *Store) applyRemoteLocked(card *schema.Card, rc *schema.RemoteCard) {
	card.Title = rc.Title
	card.Description = rc.Description
	card.DueAt = nil
	if rc.DueAt != nil {
		due := *rc.DueAt
		card.DueAt = &due
	}
	card.UpdatedAt = rc.UpdatedAt

	target := s.board.Column(rc.ColumnID)
	if target == nil {
		return
	}
	if from := s.board.Column(card.ColumnID); from != nil {
		from.Remove(card.ID)
	}
	target.Insert(card.ID, rc.Position)
	card.ColumnID = rc.ColumnID
}

// RequeueFailed moves every Failed card back to Dirty and re-queues failed
// tombstones. It returns how many ids were queued.
func (s *Store) RequeueFailed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, col := range s.board.Columns {
		for _, id := range col.CardIDs {
			card := s.board.Cards[id]
			if card.SyncState != schema.Failed {
				continue
			}
			card.SyncState = schema.Dirty
			card.LastError = ""
			s.queue.Enqueue(id)
			s.emitLocked(StateChanged, card, "")
			n++
		}
	}
	for id, ts := range s.board.Tombstones {
		if ts.Failed {
			ts.Failed = false
			ts.LastError = ""
			s.queue.Enqueue(id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.persistLocked(ctx)
}
