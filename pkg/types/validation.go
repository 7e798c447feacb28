package types

import (
	"regexp"
)

var (
	classroomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	// Loose BCP-47 shape: primary subtag plus optional region/script subtags.
	languageCodePattern = regexp.MustCompile(`^[a-zA-Z]{2,8}(-[a-zA-Z0-9]{1,8})*$`)
	usernamePattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
)

// IsValidClassroomCode reports whether code matches the six-character
// A-Z0-9 format.
func IsValidClassroomCode(code string) bool {
	return classroomCodePattern.MatchString(code)
}

// IsValidLanguageCode reports whether lang looks like a BCP-47 tag.
func IsValidLanguageCode(lang string) bool {
	return languageCodePattern.MatchString(lang)
}

// IsValidRole reports whether role is one a client may register as.
func IsValidRole(role string) bool {
	return Role(role) == RoleTeacher || Role(role) == RoleStudent
}

// IsValidUsername reports whether username is acceptable for teacher accounts.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}
