package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is the current persisted board document version.
const FormatVersion = 1

// Tombstone records a local deletion until the remote authority accepts it.
type Tombstone struct {
	ID            string    `json:"id"`
	DeletedAt     time.Time `json:"deleted_at"`
	RemoteVersion int64     `json:"remote_version"`
	Failed        bool      `json:"failed,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Board is the full persisted snapshot of a local store.
type Board struct {
	FormatVersion int                   `json:"format_version"`
	Columns       []*Column             `json:"columns"`
	Cards         map[string]*Card      `json:"cards"`
	Tombstones    map[string]*Tombstone `json:"tombstones"`
	Queue         []string              `json:"queue"`
	LastSyncedAt  *time.Time            `json:"last_synced_at"`
	SavedAt       time.Time             `json:"saved_at"`
}

// NewBoard returns an empty board with the default columns.
func NewBoard() *Board {
	return &Board{
		FormatVersion: FormatVersion,
		Columns:       DefaultColumns(),
		Cards:         make(map[string]*Card),
		Tombstones:    make(map[string]*Tombstone),
		Queue:         []string{},
	}
}

// Column returns the column with the given id, or nil.
func (b *Board) Column(id string) *Column {
	for _, col := range b.Columns {
		if col.ID == id {
			return col
		}
	}
	return nil
}

// Validate checks the structural invariants of a decoded board: every card
// sits in exactly one column, and that column matches the card's ColumnID.
func (b *Board) Validate() error {
	if b.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version %d", b.FormatVersion)
	}
	if len(b.Columns) == 0 {
		return fmt.Errorf("board has no columns")
	}

	seenCols := make(map[string]bool, len(b.Columns))
	placed := make(map[string]string, len(b.Cards))
	for _, col := range b.Columns {
		if err := col.Validate(); err != nil {
			return fmt.Errorf("invalid column: %w", err)
		}
		if seenCols[col.ID] {
			return fmt.Errorf("duplicate column %s", col.ID)
		}
		seenCols[col.ID] = true

		for _, id := range col.CardIDs {
			if prev, ok := placed[id]; ok {
				return fmt.Errorf("card %s appears in columns %s and %s", id, prev, col.ID)
			}
			placed[id] = col.ID
		}
	}

	for id, card := range b.Cards {
		if card.ID != id {
			return fmt.Errorf("card key %s does not match id %s", id, card.ID)
		}
		if err := card.Validate(); err != nil {
			return fmt.Errorf("invalid card %s: %w", id, err)
		}
		if placed[id] != card.ColumnID {
			return fmt.Errorf("card %s references column %s but is placed in %q", id, card.ColumnID, placed[id])
		}
	}
	if len(placed) != len(b.Cards) {
		return fmt.Errorf("columns reference %d cards, table holds %d", len(placed), len(b.Cards))
	}
	return nil
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	cp := &Board{
		FormatVersion: b.FormatVersion,
		Columns:       make([]*Column, len(b.Columns)),
		Cards:         make(map[string]*Card, len(b.Cards)),
		Tombstones:    make(map[string]*Tombstone, len(b.Tombstones)),
		Queue:         append([]string{}, b.Queue...),
		SavedAt:       b.SavedAt,
	}
	for i, col := range b.Columns {
		cp.Columns[i] = col.Clone()
	}
	for id, card := range b.Cards {
		cp.Cards[id] = card.Clone()
	}
	for id, ts := range b.Tombstones {
		t := *ts
		cp.Tombstones[id] = &t
	}
	if b.LastSyncedAt != nil {
		ts := *b.LastSyncedAt
		cp.LastSyncedAt = &ts
	}
	return cp
}

// Encode serializes the board for a persistence adapter.
func (b *Board) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board: %w", err)
	}
	return data, nil
}

// DecodeBoard parses and validates a persisted board document.
func DecodeBoard(data []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse board: %w", err)
	}
	if b.Cards == nil {
		b.Cards = make(map[string]*Card)
	}
	if b.Tombstones == nil {
		b.Tombstones = make(map[string]*Tombstone)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid board: %w", err)
	}
	return &b, nil
}
