package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// Authority is the remote copy of the board.
type Authority interface {
	// Upsert stores card if baseVersion matches the authority's version and
	// returns the new version.
	Upsert(ctx context.Context, card schema.RemoteCard, baseVersion int64) (int64, error)

	// Delete removes a card. Deleting an unknown card succeeds.
	Delete(ctx context.Context, id string) error
}

// Lister is implemented by authorities that can enumerate their cards.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

// Record is a card as stored by the authority.
type Record struct {
	Card    schema.RemoteCard `json:"card"`
	Version int64             `json:"version"`
}

var (
	// ErrTransient marks failures worth retrying.
	ErrTransient = errors.New("transient remote failure")

	// ErrUnreachable is returned while the authority is offline.
	ErrUnreachable = fmt.Errorf("%w: authority unreachable", ErrTransient)

	// ErrRejected marks requests the authority refused outright.
	ErrRejected = errors.New("request rejected by remote")
)

// ConflictError reports a version mismatch on Upsert.
type ConflictError struct {
	ServerVersion int64
	// Remote is the authority's copy, nil if it was deleted remotely.
	Remote *schema.RemoteCard
}

func (e *ConflictError) Error() string {
	if e.Remote == nil {
		return fmt.Sprintf("version conflict: card deleted remotely at version %d", e.ServerVersion)
	}
	return fmt.Sprintf("version conflict: remote is at version %d", e.ServerVersion)
}

// IsConflict unwraps a *ConflictError from err.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}
