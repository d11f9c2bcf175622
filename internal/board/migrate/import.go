package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/peak-flow/boardsync/internal/board/schema"
	"github.com/peak-flow/boardsync/internal/board/store"
)

// ImportOptions configures ImportJSONL.
type ImportOptions struct {
	// DefaultColumn receives cards whose column does not exist locally.
	// When empty such cards are skipped.
	DefaultColumn string
	// DryRun parses and validates without touching the store.
	DryRun bool
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Created  int
	Skipped  int
	Rehomed  int
	Errors   []string
	Duration time.Duration
}

// ReadJSONL parses a JSONL card export.
func ReadJSONL(r io.Reader) ([]CardRecord, error) {
	var records []CardRecord
	decoder := json.NewDecoder(r)
	line := 0

	for {
		var rec CardRecord
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line+1, err)
		}
		line++
		records = append(records, rec)
	}
	return records, nil
}

// ImportJSONL replays an export into st as local creates: each card gets a
// fresh id, starts Dirty, and is queued for sync. Cards keep their relative
// order within a column.
func ImportJSONL(ctx context.Context, st *store.Store, path string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	records, err := ReadJSONL(file)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Read: len(records)}
	// Columns keep their first-seen order; cards within one follow Position.
	colOrder := make(map[string]int)
	for _, rec := range records {
		if _, ok := colOrder[rec.Column]; !ok {
			colOrder[rec.Column] = len(colOrder)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := colOrder[records[i].Column], colOrder[records[j].Column]
		if ci != cj {
			return ci < cj
		}
		return records[i].Position < records[j].Position
	})

	for _, rec := range records {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		column := rec.Column
		if _, ok := st.Column(column); !ok {
			if opts.DefaultColumn == "" {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("card %s: unknown column %q", rec.ID, column))
				continue
			}
			column = opts.DefaultColumn
			result.Rehomed++
		}

		in := schema.CardInput{Title: rec.Title, Description: rec.Description, DueAt: rec.DueAt}
		if opts.DryRun {
			probe := schema.Card{ID: "dry-run", Title: in.Title, ColumnID: column, CreatedAt: time.Now()}
			if err := probe.Validate(); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("card %s: %v", rec.ID, err))
				continue
			}
			result.Created++
			continue
		}

		_, err := st.CreateCard(ctx, column, in)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrPersistence):
			// Created in memory; durability is the caller's concern.
			result.Errors = append(result.Errors, fmt.Sprintf("card %s: %v", rec.ID, err))
		default:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("card %s: %v", rec.ID, err))
			continue
		}
		result.Created++
	}

	result.Duration = time.Since(start)
	return result, nil
}
