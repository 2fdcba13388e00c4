package repository

import "errors"

var (
	// ErrNotFound is returned by writes against an id that does not exist.
	// Reads return (nil, nil) for a missing record instead.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is the compare-and-set failure: the stored status no
	// longer equals the expected value. The caller must re-read and decide.
	ErrConflict = errors.New("status changed concurrently")

	// ErrTerminal is returned for driver-location writes against an order
	// that already reached completed or cancelled.
	ErrTerminal = errors.New("order is in a terminal state")
)
