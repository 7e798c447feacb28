package session

import "errors"

var (
	// ErrSessionEnded indicates an operation on a session that already ended.
	ErrSessionEnded = errors.New("session already ended")
)
