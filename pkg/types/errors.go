package types

import "errors"

var (
	ErrInvalidRole          = errors.New("role must be 'teacher' or 'student'")
	ErrInvalidLanguageCode  = errors.New("languageCode must be a BCP-47 tag")
	ErrInvalidClassroomCode = errors.New("classroom code must be 6 characters A-Z0-9")
	ErrInvalidUsername      = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen")
	ErrEmptyText            = errors.New("text cannot be empty")
)
