package types

import (
	"time"
)

// Role identifies a peer's side of the classroom.
type Role string

// Participant roles. A peer starts with RoleUnset and adopts a role on its
// first successful register frame.
const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleUnset   Role = ""
)

// Quality classifications assigned when a session ends.
const (
	QualityReal       = "real"
	QualityTooShort   = "too_short"
	QualityNoStudents = "no_students"
	QualityNoActivity = "no_activity"
	QualityDead       = "dead"
)

// Session is the durable record of one classroom instance. The in-memory
// layer references sessions by ID only; all mutation goes through the
// repository.
type Session struct {
	ID                string     `json:"id"`
	ClassCode         string     `json:"class_code,omitempty"` // empty until a student joins; immutable once set
	TeacherID         string     `json:"teacher_id"`
	TeacherLanguage   string     `json:"teacher_language"`
	StudentsCount     int        `json:"students_count"`
	TotalTranslations int        `json:"total_translations"`
	StartTime         time.Time  `json:"start_time"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	IsActive          bool       `json:"is_active"`
	Quality           string     `json:"quality,omitempty"`
	QualityReason     string     `json:"quality_reason,omitempty"`
}

// Duration returns the session length, using now for still-active sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// Transcript is one teacher utterance, append-only.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// Translation is one successful per-language fan-out leg, append-only.
type Translation struct {
	SessionID      string    `json:"session_id"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	LatencyMS      int64     `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// User is a registered teacher account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Settings is a peer's client-controlled settings bag. Values arrive on the
// register and settings frames and are merged shallowly.
type Settings map[string]any

// Merge returns a copy of s with every key of other applied on top.
func (s Settings) Merge(other Settings) Settings {
	merged := make(Settings, len(s)+len(other))
	for k, v := range s {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// TTSServiceType returns the peer's preferred TTS backend, if set.
func (s Settings) TTSServiceType() string {
	if v, ok := s["ttsServiceType"].(string); ok {
		return v
	}
	return ""
}
