package store

import (
	"context"
	"fmt"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// CreateCard appends a new Dirty card to the end of columnID.
//
// Returns ErrInvalidContainer for an unknown column and ErrInvalidCard when
// the payload does not validate. On ErrPersistence the card is still created.
func (s *Store) CreateCard(ctx context.Context, columnID string, in schema.CardInput) (*schema.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.board.Column(columnID)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContainer, columnID)
	}

	now := s.now()
	card := &schema.Card{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		ColumnID:    columnID,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   schema.Dirty,
	}
	if in.DueAt != nil {
		due := *in.DueAt
		card.DueAt = &due
	}
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCard, err)
	}

	card.Rev = 1
	col.Insert(card.ID, len(col.CardIDs))
	s.board.Cards[card.ID] = card
	s.queue.Enqueue(card.ID)

	err := s.persistLocked(ctx)
	s.emitLocked(CardCreated, card, "")
	return card.Clone(), err
}

// UpdateCard merges patch into the card. An empty patch is a no-op.
func (s *Store) UpdateCard(ctx context.Context, id string, patch schema.CardPatch) (*schema.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if patch.Empty() {
		return card.Clone(), nil
	}

	// Validate on a copy so a bad patch leaves the card untouched.
	next := card.Clone()
	patch.Apply(next)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCard, err)
	}
	patch.Apply(card)
	s.touchLocked(card)

	err := s.persistLocked(ctx)
	s.emitLocked(CardUpdated, card, "")
	return card.Clone(), err
}

// MoveCard moves a card from one column to index in another (or the same)
// column. index is clamped to [0, len]. The card must currently sit in
// fromColumn, otherwise ErrInvalidContainer is returned.
func (s *Store) MoveCard(ctx context.Context, id, fromColumn, toColumn string, index int) (*schema.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	from := s.board.Column(fromColumn)
	if from == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContainer, fromColumn)
	}
	to := s.board.Column(toColumn)
	if to == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContainer, toColumn)
	}
	if card.ColumnID != fromColumn || !from.Remove(id) {
		return nil, fmt.Errorf("%w: card %s is not in column %s", ErrInvalidContainer, id, fromColumn)
	}

	to.Insert(id, index)
	card.ColumnID = toColumn
	s.touchLocked(card)

	err := s.persistLocked(ctx)
	s.emitLocked(CardMoved, card, "")
	return card.Clone(), err
}

// DeleteCard removes a card and leaves a tombstone queued so the deletion
// reaches the remote authority.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card := s.board.Cards[id]
	if card == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if col := s.board.Column(card.ColumnID); col != nil {
		col.Remove(id)
	}
	delete(s.board.Cards, id)

	s.board.Tombstones[id] = &schema.Tombstone{
		ID:            id,
		DeletedAt:     s.now(),
		RemoteVersion: card.RemoteVersion,
	}
	s.queue.Enqueue(id)

	err := s.persistLocked(ctx)
	s.events.publish(Event{Type: CardDeleted, CardID: id, ColumnID: card.ColumnID, At: s.now()})
	return err
}

// AddColumn appends a column. Columns are local only and never synced.
func (s *Store) AddColumn(ctx context.Context, id, title string) (*schema.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board.Column(id) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateContainer, id)
	}
	col := &schema.Column{ID: id, Title: title, CardIDs: []string{}}
	if err := col.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	s.board.Columns = append(s.board.Columns, col)

	err := s.persistLocked(ctx)
	s.events.publish(Event{Type: ColumnAdded, ColumnID: id, At: s.now()})
	return col.Clone(), err
}
