package schema

import "fmt"

// Column is an ordered container of card ids.
type Column struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	CardIDs []string `json:"card_ids"`
}

// Validate checks if the Column has valid field values.
func (c *Column) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// IndexOf returns the position of id in the column, or -1.
func (c *Column) IndexOf(id string) int {
	for i, cid := range c.CardIDs {
		if cid == id {
			return i
		}
	}
	return -1
}

// Remove drops id from the column and reports whether it was present.
func (c *Column) Remove(id string) bool {
	i := c.IndexOf(id)
	if i < 0 {
		return false
	}
	c.CardIDs = append(c.CardIDs[:i], c.CardIDs[i+1:]...)
	return true
}

// Insert places id at index, clamped to [0, len(CardIDs)], and returns the
// index actually used.
func (c *Column) Insert(id string, index int) int {
	if index < 0 {
		index = 0
	}
	if index > len(c.CardIDs) {
		index = len(c.CardIDs)
	}
	c.CardIDs = append(c.CardIDs, "")
	copy(c.CardIDs[index+1:], c.CardIDs[index:])
	c.CardIDs[index] = id
	return index
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	cp := *c
	cp.CardIDs = append([]string(nil), c.CardIDs...)
	return &cp
}

// DefaultColumns returns the layout used when no board exists yet.
func DefaultColumns() []*Column {
	return []*Column{
		{ID: "todo", Title: "To Do", CardIDs: []string{}},
		{ID: "doing", Title: "In Progress", CardIDs: []string{}},
		{ID: "done", Title: "Done", CardIDs: []string{}},
	}
}
