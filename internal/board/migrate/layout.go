// Package migrate moves boards in and out of boardsync.
//
// A layout file (TOML) describes the columns a new board starts with. Boards
// can be exported as YAML for reading or as JSONL (one card per line) for
// tooling, and a JSONL export can be replayed into another store as local
// creates that then sync like any other change.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
)

// Layout is the TOML board layout:
//
//	name = "team board"
//
//	[[columns]]
//	id = "backlog"
//	title = "Backlog"
type Layout struct {
	Name    string         `toml:"name"`
	Columns []LayoutColumn `toml:"columns"`
}

// LayoutColumn is one column of a Layout.
type LayoutColumn struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
}

// LoadLayout reads and validates a layout file.
func LoadLayout(path string) (*Layout, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates TOML layout data.
func ParseLayout(data []byte) (*Layout, error) {
	var layout Layout
	md, err := toml.Decode(string(data), &layout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown layout key %q", undecoded[0].String())
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &layout, nil
}

// Validate checks that the layout has uniquely identified, titled columns.
func (l *Layout) Validate() error {
	if len(l.Columns) == 0 {
		return fmt.Errorf("layout has no columns")
	}
	seen := make(map[string]bool, len(l.Columns))
	for i, col := range l.Columns {
		c := schema.Column{ID: col.ID, Title: col.Title}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
		if seen[col.ID] {
			return fmt.Errorf("duplicate column %s", col.ID)
		}
		seen[col.ID] = true
	}
	return nil
}

// ApplyLayout adds every layout column the store does not have yet and
// returns how many were added. Existing columns are left alone.
func ApplyLayout(ctx context.Context, st *store.Store, layout *Layout) (int, error) {
	added := 0
	for _, col := range layout.Columns {
		_, err := st.AddColumn(ctx, col.ID, col.Title)
		switch {
		case errors.Is(err, store.ErrDuplicateContainer):
			continue
		case err != nil && !errors.Is(err, store.ErrPersistence):
			return added, fmt.Errorf("failed to add column %s: %w", col.ID, err)
		}
		added++
		if err != nil {
			return added, err
		}
	}
	return added, nil
}
