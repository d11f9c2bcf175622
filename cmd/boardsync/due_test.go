package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-04-01T09:30:00Z", time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)},
		{"2026-04-01", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDue(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "parseDue(%q) = %v, want %v", tt.in, got, tt.want)
	}

	got, err := parseDue("tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Day())
	assert.Equal(t, time.March, got.Month())
}

func TestParseDue_Invalid(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "   ", "qwerty zxcv"} {
		_, err := parseDue(in, now)
		assert.Error(t, err, "parseDue(%q)", in)
	}
}

func TestFormatDue(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "", formatDue(nil, now))

	past := now.Add(-48 * time.Hour)
	assert.Equal(t, "overdue Mar 2", formatDue(&past, now))

	later := now.Add(3 * time.Hour)
	assert.Equal(t, "today 13:00", formatDue(&later, now))

	far := now.AddDate(0, 1, 0)
	assert.Equal(t, "Apr 4", formatDue(&far, now))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-ef45-6789"))
	assert.Equal(t, "abc", shortID("abc"))
}
