package schema

import (
	"strings"
	"testing"
	"time"
)

func sampleBoard() *Board {
	now := time.Now().UTC()
	b := NewBoard()
	b.Cards["c1"] = &Card{ID: "c1", Title: "one", ColumnID: "todo", CreatedAt: now, UpdatedAt: now, Rev: 1, SyncState: Dirty}
	b.Cards["c2"] = &Card{ID: "c2", Title: "two", ColumnID: "done", CreatedAt: now, UpdatedAt: now, Rev: 3, RemoteVersion: 7}
	b.Column("todo").CardIDs = []string{"c1"}
	b.Column("done").CardIDs = []string{"c2"}
	b.Queue = []string{"c1"}
	return b
}

func TestBoard_EncodeDecode(t *testing.T) {
	b := sampleBoard()

	data, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := DecodeBoard(data)
	if err != nil {
		t.Fatalf("DecodeBoard() error = %v", err)
	}
	if got.Cards["c1"].SyncState != Dirty {
		t.Errorf("c1 state = %v, want dirty", got.Cards["c1"].SyncState)
	}
	if got.Cards["c2"].RemoteVersion != 7 {
		t.Errorf("c2 remote version = %d, want 7", got.Cards["c2"].RemoteVersion)
	}
	if len(got.Queue) != 1 || got.Queue[0] != "c1" {
		t.Errorf("queue = %v", got.Queue)
	}
}

func TestBoard_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Board)
		errMsg string
	}{
		{"card in two columns", func(b *Board) { b.Column("doing").CardIDs = []string{"c1"} }, "appears in columns"},
		{"card in no column", func(b *Board) { b.Column("todo").CardIDs = nil }, "placed in"},
		{"column mismatch", func(b *Board) { b.Cards["c1"].ColumnID = "doing" }, "references column"},
		{"unknown version", func(b *Board) { b.FormatVersion = 99 }, "unsupported format version"},
		{"no columns", func(b *Board) { b.Columns = nil }, "no columns"},
		{"orphan id in column", func(b *Board) { b.Column("doing").CardIDs = []string{"ghost"} }, "columns reference"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBoard()
			tt.mutate(b)
			err := b.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.errMsg)
			}
		})
	}

	if err := sampleBoard().Validate(); err != nil {
		t.Errorf("sample board should validate: %v", err)
	}
}

func TestDecodeBoard_Corrupt(t *testing.T) {
	if _, err := DecodeBoard([]byte(`{"format_version": 1, "columns": [`)); err == nil {
		t.Errorf("DecodeBoard(truncated) = nil error")
	}
}

func TestBoard_CloneIsDeep(t *testing.T) {
	b := sampleBoard()
	cp := b.Clone()

	cp.Column("todo").CardIDs[0] = "mutated"
	cp.Cards["c1"].Title = "mutated"
	cp.Queue[0] = "mutated"

	if b.Column("todo").CardIDs[0] != "c1" || b.Cards["c1"].Title != "one" || b.Queue[0] != "c1" {
		t.Errorf("Clone shares state with the original")
	}
}
