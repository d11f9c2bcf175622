package schema

import (
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds card titles.
const MaxTitleLength = 500

// Card is a single kanban card together with its sync bookkeeping.
type Card struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Payload =====
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`

	// ===== Container =====
	ColumnID string `json:"column_id"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ===== Sync Bookkeeping =====
	Rev           int64     `json:"rev"`
	RemoteVersion int64     `json:"remote_version"`
	SyncState     SyncState `json:"sync_state"`
	LastError     string    `json:"last_error,omitempty"`

	// Remote and ServerVersion hold the authority's copy while the card is
	// in Conflict. Remote is nil when the card was deleted remotely.
	Remote        *RemoteCard `json:"remote,omitempty"`
	ServerVersion int64       `json:"server_version,omitempty"`
}

// Validate checks if the Card has valid field values.
func (c *Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(c.Title))
	}
	if c.ColumnID == "" {
		return fmt.Errorf("column_id is required")
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	if c.DueAt != nil {
		due := *c.DueAt
		cp.DueAt = &due
	}
	if c.Remote != nil {
		cp.Remote = c.Remote.Clone()
	}
	return &cp
}

// CardInput is the payload accepted when a card is created.
type CardInput struct {
	Title       string
	Description string
	DueAt       *time.Time
}

// CardPatch is a partial payload. Nil fields are left untouched.
type CardPatch struct {
	Title       *string
	Description *string
	DueAt       *time.Time
	// ClearDue removes the due date; it wins over DueAt.
	ClearDue bool
}

// Empty reports whether the patch changes nothing.
func (p CardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueAt == nil && !p.ClearDue
}

// Apply merges the patch into c. It does not touch timestamps or sync state.
func (p CardPatch) Apply(c *Card) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.ClearDue {
		c.DueAt = nil
	} else if p.DueAt != nil {
		due := *p.DueAt
		c.DueAt = &due
	}
}
