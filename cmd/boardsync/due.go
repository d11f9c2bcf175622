package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts RFC 3339, YYYY-MM-DD, or natural language such as
// "tomorrow" or "next friday at 5pm", relative to now.
func parseDue(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty due date")
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return t.UTC(), nil
	}

	r, err := dueParser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized due date %q", text)
	}
	return r.Time.UTC(), nil
}

// formatDue renders a due date for listings.
func formatDue(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	local := due.In(now.Location())
	switch days := int(local.Sub(now).Hours() / 24); {
	case local.Before(now):
		return "overdue " + local.Format("Jan 2")
	case days == 0:
		return "today " + local.Format("15:04")
	case days < 7:
		return local.Format("Mon 15:04")
	default:
		return local.Format("Jan 2")
	}
}
