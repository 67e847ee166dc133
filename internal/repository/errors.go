package repository

import "errors"

var (
	// ErrNotFound means the row does not exist or is expired.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate means a unique constraint rejected the write.
	ErrDuplicate = errors.New("repository: duplicate")
)
