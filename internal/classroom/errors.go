package classroom

import "errors"

var (
	// ErrCodeNotFound means no classroom is registered under the given code.
	ErrCodeNotFound = errors.New("classroom code not found")

	// ErrCodeExpired means the classroom code exists but its TTL has passed.
	ErrCodeExpired = errors.New("classroom code expired")

	// ErrTeacherAbsent means the owning teacher is not currently connected.
	ErrTeacherAbsent = errors.New("classroom teacher not connected")

	// ErrExhausted means code generation could not find a free code.
	ErrExhausted = errors.New("classroom code space exhausted")
)
