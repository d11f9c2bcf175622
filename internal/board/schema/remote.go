package schema

import "time"

// RemoteCard is the payload exchanged with the remote authority.
type RemoteCard struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ColumnID    string     `json:"column_id"`
	Position    int        `json:"position"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy.
func (r *RemoteCard) Clone() *RemoteCard {
	if r == nil {
		return nil
	}
	cp := *r
	if r.DueAt != nil {
		due := *r.DueAt
		cp.DueAt = &due
	}
	return &cp
}

// ToRemote builds the wire payload for c at the given column position.
func (c *Card) ToRemote(position int) RemoteCard {
	rc := RemoteCard{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		ColumnID:    c.ColumnID,
		Position:    position,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.DueAt != nil {
		due := *c.DueAt
		rc.DueAt = &due
	}
	return rc
}
