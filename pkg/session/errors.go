package session

import "errors"

var (
	// ErrNotFound is returned for an unknown session identifier.
	ErrNotFound = errors.New("session: not found")

	// ErrClosed is returned when updating a session that has ended.
	ErrClosed = errors.New("session: closed")

	// ErrInvalidID is returned for an empty session identifier.
	ErrInvalidID = errors.New("session: invalid id")

	// ErrInvalidMood is returned when overriding with a non-emotion label.
	ErrInvalidMood = errors.New("session: invalid mood")
)
