package schema

import "fmt"

// SyncState tracks where a card is in its propagation to the remote authority.
type SyncState int

const (
	// Clean means the remote authority has accepted the card's current revision.
	Clean SyncState = iota
	// Dirty means the card was mutated locally and is waiting to be pushed.
	Dirty
	// Syncing means a push of the current revision is in flight.
	Syncing
	// Conflict means the remote authority rejected the push because its copy
	// moved on. The card stays queued until something resolves it.
	Conflict
	// Failed means the push exhausted its retry budget.
	Failed
)

var stateNames = [...]string{"clean", "dirty", "syncing", "conflict", "failed"}

// String returns a human-readable representation of the state.
func (s SyncState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s SyncState) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid sync state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SyncState) UnmarshalText(text []byte) error {
	st, err := ParseSyncState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseSyncState parses the textual form produced by String.
func ParseSyncState(v string) (SyncState, error) {
	for i, name := range stateNames {
		if name == v {
			return SyncState(i), nil
		}
	}
	return Clean, fmt.Errorf("unknown sync state %q", v)
}

// Pending reports whether a card in this state still needs the sync engine.
func (s SyncState) Pending() bool {
	return s == Dirty || s == Syncing || s == Conflict
}
