package local

import "errors"

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("not found")

	// ErrExists is returned by Create when the record is already present
	ErrExists = errors.New("already exists")
)
