package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write collides with a unique key, such
	// as a second schedule for the same user.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("persistence: corrupt record")
)
