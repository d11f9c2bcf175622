package store

import "errors"

var (
	// ErrInvalidContainer is returned when a column does not exist or does
	// not hold the card being moved.
	ErrInvalidContainer = errors.New("invalid column")

	// ErrEntityNotFound is returned for unknown card ids.
	ErrEntityNotFound = errors.New("card not found")

	// ErrInvalidCard wraps payload validation failures.
	ErrInvalidCard = errors.New("invalid card")

	// ErrDuplicateContainer is returned by AddColumn for an existing id.
	ErrDuplicateContainer = errors.New("column already exists")

	// ErrPersistence means the change was applied in memory but could not be
	// saved. The returned card reflects the applied change.
	ErrPersistence = errors.New("failed to persist board")

	// ErrNoConflict is returned by ResolveConflict for cards not in Conflict.
	ErrNoConflict = errors.New("card is not in conflict")
)
