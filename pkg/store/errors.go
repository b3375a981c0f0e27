package store

import "errors"

var (
	// ErrCapacityExceeded indicates a single incoming fragment cannot fit
	// its category quota even after maximal eviction.
	ErrCapacityExceeded = errors.New("category capacity exceeded")

	// ErrUnavailable indicates the backing store cannot be reached. The
	// read path degrades to an empty result; the write path surfaces it.
	ErrUnavailable = errors.New("fragment store unavailable")

	// ErrNotFound indicates the requested fragment or category row does
	// not exist.
	ErrNotFound = errors.New("not found")
)
