package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// CardRecord is the export format of a single card.
type CardRecord struct {
	ID            string           `json:"id" yaml:"id"`
	Title         string           `json:"title" yaml:"title"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	DueAt         *time.Time       `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	Column        string           `json:"column" yaml:"-"`
	Position      int              `json:"position" yaml:"-"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"updated_at"`
	SyncState     schema.SyncState `json:"sync_state,omitempty" yaml:"sync_state,omitempty"`
	RemoteVersion int64            `json:"remote_version,omitempty" yaml:"remote_version,omitempty"`
}

// CardToRecord converts a card at position in its column.
func CardToRecord(card *schema.Card, position int) CardRecord {
	rec := CardRecord{
		ID:            card.ID,
		Title:         card.Title,
		Description:   card.Description,
		Column:        card.ColumnID,
		Position:      position,
		CreatedAt:     card.CreatedAt,
		UpdatedAt:     card.UpdatedAt,
		SyncState:     card.SyncState,
		RemoteVersion: card.RemoteVersion,
	}
	if card.DueAt != nil {
		due := *card.DueAt
		rec.DueAt = &due
	}
	return rec
}

// Records lists the board's cards in column order.
func Records(board *schema.Board) []CardRecord {
	out := make([]CardRecord, 0, len(board.Cards))
	for _, col := range board.Columns {
		for i, id := range col.CardIDs {
			if card := board.Cards[id]; card != nil {
				out = append(out, CardToRecord(card, i))
			}
		}
	}
	return out
}

// ExportJSONL writes one card per line in column order and returns how many
// were written.
func ExportJSONL(w io.Writer, board *schema.Board) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for _, rec := range Records(board) {
		if err := enc.Encode(rec); err != nil {
			return n, fmt.Errorf("failed to encode card %s: %w", rec.ID, err)
		}
		n++
	}
	return n, nil
}

type yamlColumn struct {
	ID    string       `yaml:"id"`
	Title string       `yaml:"title"`
	Cards []CardRecord `yaml:"cards"`
}

type yamlBoard struct {
	ExportedAt   time.Time    `yaml:"exported_at"`
	LastSyncedAt *time.Time   `yaml:"last_synced_at,omitempty"`
	Columns      []yamlColumn `yaml:"columns"`
}

// ExportYAML writes the board as a human-readable YAML document grouped by
// column.
func ExportYAML(w io.Writer, board *schema.Board) error {
	doc := yamlBoard{
		ExportedAt:   time.Now().UTC(),
		LastSyncedAt: board.LastSyncedAt,
		Columns:      make([]yamlColumn, 0, len(board.Columns)),
	}
	for _, col := range board.Columns {
		yc := yamlColumn{ID: col.ID, Title: col.Title, Cards: []CardRecord{}}
		for i, id := range col.CardIDs {
			if card := board.Cards[id]; card != nil {
				yc.Cards = append(yc.Cards, CardToRecord(card, i))
			}
		}
		doc.Columns = append(doc.Columns, yc)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	return enc.Close()
}

// Format is an export format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// FormatFromPath guesses the format from a file extension, defaulting to JSONL.
func FormatFromPath(path string) Format {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// ExportFile writes the board to path atomically.
func ExportFile(path string, format Format, board *schema.Board) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	switch format {
	case FormatYAML:
		err = ExportYAML(f, board)
	case FormatJSONL:
		_, err = ExportJSONL(f, board)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
