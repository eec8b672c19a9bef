package types

import "errors"

// Store operation errors.
var (
	ErrNotFound           = errors.New("todo not found")
	ErrInvalidID          = errors.New("invalid todo ID")
	ErrInvalidDescription = errors.New("description must be 1 to 255 characters")
	ErrInvalidQuery       = errors.New("only read-only queries can be watched")
)

// Lifecycle errors.
var (
	// ErrDetached is returned when the data source has not been attached yet
	// or has already been detached.
	ErrDetached        = errors.New("data source is detached")
	ErrAlreadyAttached = errors.New("data source is already attached")
	// ErrClosed is returned by a client or connection after Close.
	ErrClosed = errors.New("connection is closed")
)
