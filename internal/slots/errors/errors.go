package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	// ErrStale is returned by a compare-and-set whose observed state no longer holds.
	ErrStale = errors.New("slot changed concurrently")
)
