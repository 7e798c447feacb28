package interfaces

import (
	"context"
	"time"

	"classrelay/pkg/types"
)

// SessionRepository is the narrow contract the core holds on the durable
// store. Implementations own their concurrency; every method is safe for
// concurrent use. Counter mutations (students, translations) are atomic at
// the store level.
type SessionRepository interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSession persists the mutable fields of an existing session
	// (end time, activity, quality, counters).
	UpdateSession(ctx context.Context, session *types.Session) error

	// SetClassCode binds the classroom code to a session. The code is
	// immutable once set; a second call with a different code is ignored.
	SetClassCode(ctx context.Context, sessionID, code string) error

	// IncrementStudents bumps the session's student count and returns the
	// new value.
	IncrementStudents(ctx context.Context, sessionID string) (int, error)

	// DecrementStudents lowers the student count, floored at zero, and
	// returns the new value.
	DecrementStudents(ctx context.Context, sessionID string) (int, error)

	// AddTranslations adds n to the session's translation total.
	AddTranslations(ctx context.Context, sessionID string, n int) error

	// TouchSession updates the session's last-activity timestamp.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// ListActiveSessions returns all sessions with is_active=true.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// CountSessions returns (active, total) session counts for diagnostics.
	CountSessions(ctx context.Context) (active int, total int, err error)

	// AppendTranscript stores one teacher utterance.
	AppendTranscript(ctx context.Context, transcript *types.Transcript) error

	// AppendTranslation stores one completed fan-out leg.
	AppendTranslation(ctx context.Context, translation *types.Translation) error

	// CreateUser stores a teacher account. Usernames are unique.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUserByUsername returns the account or ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases the store.
	Close() error
}
