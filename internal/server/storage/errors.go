package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that no credential exists for the username
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUnknownSession indicates that the session id was never created
	// in this process, was evicted, or belongs to another user
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionLimit indicates that the store is full and no idle
	// session could be evicted to make room
	ErrSessionLimit = errors.New("session limit reached")
)
