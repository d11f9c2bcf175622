package sync

import (
	"fmt"
	"time"
)

// Report summarizes one RunPass call, including any coalesced follow-up passes.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Passes   int           `json:"passes"`

	Synced    int      `json:"synced"`
	Deleted   int      `json:"deleted"`
	Conflicts []string `json:"conflicts,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Retried   int      `json:"retried"`
	Expected  int      `json:"expected"`
	Skipped   int      `json:"skipped"`
	Held      int      `json:"held"`

	// Errors maps ids to the last reportable error seen for them.
	Errors map[string]string `json:"errors,omitempty"`

	// LastError is the most recent reportable error, as "id: message".
	LastError string `json:"last_error,omitempty"`

	Cancelled bool `json:"cancelled"`
}

func newReport(started time.Time) *Report {
	return &Report{Started: started, Errors: make(map[string]string)}
}

func (r *Report) note(id, msg string) {
	r.Errors[id] = msg
	r.LastError = id + ": " + msg
}

// Succeeded reports whether anything reached the remote authority.
func (r *Report) Succeeded() bool {
	return r.Synced+r.Deleted > 0
}

func (r *Report) String() string {
	return fmt.Sprintf("synced=%d deleted=%d conflicts=%d retried=%d failed=%d expected=%d skipped=%d held=%d (%d pass(es), %v)",
		r.Synced, r.Deleted, len(r.Conflicts), r.Retried, len(r.Failed), r.Expected, r.Skipped, r.Held,
		r.Passes, r.Duration.Round(time.Millisecond))
}

// State is the engine's pass state.
type State string

const (
	Idle     State = "idle"
	Draining State = "draining"
)

// Status is the engine's externally visible state.
type Status struct {
	State        State      `json:"state"`
	Online       bool       `json:"online"`
	Pending      int        `json:"pending"`
	Conflicts    int        `json:"conflicts"`
	Failed       int        `json:"failed"`
	LastPass     *time.Time `json:"last_pass,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// HasConflicts reports whether any card is held for resolution.
func (s Status) HasConflicts() bool {
	return s.Conflicts > 0
}

// Label collapses the status to offline, syncing, pending or synced.
func (s Status) Label() string {
	switch {
	case !s.Online:
		return "offline"
	case s.State == Draining:
		return "syncing"
	case s.Pending > 0:
		return "pending"
	default:
		return "synced"
	}
}
