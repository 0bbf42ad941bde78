package store

import "errors"

var (
	// ErrDuplicatePending is returned by Enqueue when a non-terminal item
	// already exists for the same key. The existing item's id is returned
	// alongside it.
	ErrDuplicatePending = errors.New("an equivalent item is already pending")

	// ErrNotFound is returned when no item exists for the given id.
	ErrNotFound = errors.New("queue item not found")

	// ErrStale is returned by commit operations when the item is no longer
	// in processing state, e.g. it was cancelled by an operator or its lease
	// expired and another worker reclaimed it.
	ErrStale = errors.New("item no longer held by this worker")

	// ErrAlreadyTerminal is returned by Cancel for items that have finished.
	ErrAlreadyTerminal = errors.New("item already terminal")
)
