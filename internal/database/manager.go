// Package database implements the SessionRepository contract on SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	dbconfig "classrelay/pkg/database"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// Manager implements interfaces.SessionRepository. Reads run concurrently on
// the pool; all writes funnel through a single goroutine, which is the only
// safe write pattern for SQLite under load.
type Manager struct {
	db       *sql.DB
	config   *dbconfig.Config
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	log      zerolog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and starts
// the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := dbconfig.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	m := &Manager{
		db:       db,
		config:   config,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
		log:      logging.WithComponent("database"),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// each failed write exactly once.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Msg("write failed, retrying once")
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("repository is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("repository is shutting down")
	}
}

// CreateSession persists a new session record.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, class_code, teacher_id, teacher_language, students_count,
				total_translations, start_time, last_activity_at, end_time, is_active, quality, quality_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			nullString(session.ClassCode),
			session.TeacherID,
			session.TeacherLanguage,
			session.StudentsCount,
			session.TotalTranslations,
			session.StartTime,
			session.LastActivityAt,
			session.EndTime,
			boolToInt(session.IsActive),
			nullString(session.Quality),
			nullString(session.QualityReason),
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, class_code, teacher_id, teacher_language, students_count,
			total_translations, start_time, last_activity_at, end_time, is_active, quality, quality_reason
		FROM sessions WHERE id = ?
	`, sessionID)
	return scanSession(row)
}

// UpdateSession persists the mutable fields of an existing session.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE sessions
			SET teacher_language = ?, students_count = ?, total_translations = ?,
				last_activity_at = ?, end_time = ?, is_active = ?, quality = ?, quality_reason = ?
			WHERE id = ?
		`,
			session.TeacherLanguage,
			session.StudentsCount,
			session.TotalTranslations,
			session.LastActivityAt,
			session.EndTime,
			boolToInt(session.IsActive),
			nullString(session.Quality),
			nullString(session.QualityReason),
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

// SetClassCode binds the classroom code once; later calls with a different
// code leave the original in place.
func (m *Manager) SetClassCode(ctx context.Context, sessionID, code string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE sessions SET class_code = ? WHERE id = ? AND class_code IS NULL",
			code, sessionID)
		if err != nil {
			return fmt.Errorf("failed to set class code: %w", err)
		}
		return nil
	})
}

// IncrementStudents bumps the student count and returns the new value.
func (m *Manager) IncrementStudents(ctx context.Context, sessionID string) (int, error) {
	return m.adjustStudents(ctx, sessionID, "students_count = students_count + 1")
}

// DecrementStudents lowers the student count, floored at zero.
func (m *Manager) DecrementStudents(ctx context.Context, sessionID string) (int, error) {
	return m.adjustStudents(ctx, sessionID, "students_count = MAX(students_count - 1, 0)")
}

func (m *Manager) adjustStudents(ctx context.Context, sessionID, setClause string) (int, error) {
	var count int
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "UPDATE sessions SET "+setClause+" WHERE id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to adjust student count: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrSessionNotFound
		}
		return db.QueryRowContext(ctx, "SELECT students_count FROM sessions WHERE id = ?", sessionID).Scan(&count)
	})
	return count, err
}

// AddTranslations adds n to the session's translation total.
func (m *Manager) AddTranslations(ctx context.Context, sessionID string, n int) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE sessions SET total_translations = total_translations + ? WHERE id = ?",
			n, sessionID)
		if err != nil {
			return fmt.Errorf("failed to add translations: %w", err)
		}
		return nil
	})
}

// TouchSession updates last_activity_at.
func (m *Manager) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE sessions SET last_activity_at = ? WHERE id = ?", at, sessionID)
		if err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		return nil
	})
}

// ListActiveSessions returns all sessions with is_active=true, newest first.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, class_code, teacher_id, teacher_language, students_count,
			total_translations, start_time, last_activity_at, end_time, is_active, quality, quality_reason
		FROM sessions WHERE is_active = 1 ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CountSessions returns (active, total) session counts.
func (m *Manager) CountSessions(ctx context.Context) (int, int, error) {
	var active, total int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FILTER (WHERE is_active = 1), COUNT(*) FROM sessions").
		Scan(&active, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return active, total, nil
}

// AppendTranscript stores one teacher utterance.
func (m *Manager) AppendTranscript(ctx context.Context, t *types.Transcript) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO transcripts (session_id, text, language, timestamp) VALUES (?, ?, ?, ?)",
			t.SessionID, t.Text, t.Language, t.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert transcript: %w", err)
		}
		return nil
	})
}

// AppendTranslation stores one completed fan-out leg.
func (m *Manager) AppendTranslation(ctx context.Context, t *types.Translation) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO translations (session_id, source_language, target_language,
				original_text, translated_text, latency_ms, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.SessionID, t.SourceLanguage, t.TargetLanguage, t.OriginalText, t.TranslatedText, t.LatencyMS, t.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert translation: %w", err)
		}
		return nil
	})
}

// CreateUser stores a teacher account.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		var exists int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE username = ?", user.Username).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if exists > 0 {
			return interfaces.ErrUsernameTaken
		}
		_, err := db.ExecContext(ctx,
			"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
			user.ID, user.Username, user.PasswordHash, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUserByUsername returns a teacher account by username.
func (m *Manager) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close shuts down the write loop and the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var (
		session       types.Session
		classCode     sql.NullString
		endTime       sql.NullTime
		isActive      int
		quality       sql.NullString
		qualityReason sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&classCode,
		&session.TeacherID,
		&session.TeacherLanguage,
		&session.StudentsCount,
		&session.TotalTranslations,
		&session.StartTime,
		&session.LastActivityAt,
		&endTime,
		&isActive,
		&quality,
		&qualityReason,
	)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	session.ClassCode = classCode.String
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	session.IsActive = isActive == 1
	session.Quality = quality.String
	session.QualityReason = qualityReason.String
	return &session, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
