// Package session owns session creation, drain, and end-of-life
// classification.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classrelay/internal/classroom"
	"classrelay/internal/logging"
	"classrelay/internal/metrics"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// minRealDuration is the threshold below which an ended session cannot be
// classified as a real lesson.
const minRealDuration = 30 * time.Second

// liveState is the in-memory view of one active session. peakStudents
// backs quality classification; the durable count tracks only current
// membership.
type liveState struct {
	peakStudents int
	endTimer     *time.Timer
}

// Lifecycle manages sessions from teacher connect through drain and final
// classification. It implements the router's SessionGate and observes peer
// closures from the connection layer.
type Lifecycle struct {
	repository interfaces.SessionRepository
	registry   *ws.Registry
	classrooms *classroom.Service
	writer     *ws.ResponseWriter

	graceTimeout time.Duration

	mu     sync.Mutex
	active map[string]*liveState

	log zerolog.Logger
	now func() time.Time
}

// NewLifecycle wires the session manager. graceTimeout is how long an empty
// classroom waits for its teacher to return before the session ends.
func NewLifecycle(repository interfaces.SessionRepository, registry *ws.Registry, classrooms *classroom.Service, writer *ws.ResponseWriter, graceTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		repository:   repository,
		registry:     registry,
		classrooms:   classrooms,
		writer:       writer,
		graceTimeout: graceTimeout,
		active:       make(map[string]*liveState),
		log:          logging.WithComponent("session"),
		now:          time.Now,
	}
}

// EnsureTeacherSession resumes the teacher's active session or creates a new
// one, and guarantees a classroom code exists for it. A peer already bound to
// an active session keeps it, so re-registering is idempotent. A reconnect
// within the grace window cancels the pending end.
func (l *Lifecycle) EnsureTeacherSession(ctx context.Context, sessionID, teacherID, language string) (*types.Session, *classroom.Classroom, error) {
	session, err := l.boundSession(ctx, sessionID, teacherID)
	if err != nil {
		return nil, nil, err
	}

	if session == nil && teacherID != "" {
		session, err = l.findActiveByTeacher(ctx, teacherID)
		if err != nil {
			return nil, nil, err
		}
	}

	if session == nil {
		if teacherID == "" {
			teacherID = uuid.New().String()
		}
		now := l.now().UTC()
		session = &types.Session{
			ID:              uuid.New().String(),
			TeacherID:       teacherID,
			TeacherLanguage: language,
			StartTime:       now,
			LastActivityAt:  now,
			IsActive:        true,
		}
		if err := l.repository.CreateSession(ctx, session); err != nil {
			return nil, nil, fmt.Errorf("failed to create session: %w", err)
		}
		l.log.Info().Str("session_id", session.ID).Str("teacher_id", teacherID).Msg("session created")
	} else if language != "" && session.TeacherLanguage != language {
		session.TeacherLanguage = language
		if err := l.repository.UpdateSession(ctx, session); err != nil {
			l.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to update teacher language")
		}
	}

	room, err := l.classrooms.Ensure(session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue classroom code: %w", err)
	}
	if session.ClassCode == "" {
		if err := l.repository.SetClassCode(ctx, session.ID, room.Code); err != nil {
			l.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to persist class code")
		}
		session.ClassCode = room.Code
	}

	l.mu.Lock()
	state, ok := l.active[session.ID]
	if !ok {
		state = &liveState{}
		l.active[session.ID] = state
	}
	l.cancelEndLocked(session.ID, state)
	l.mu.Unlock()

	return session, room, nil
}

// StudentJoined records a counted student join and returns the new durable
// student count.
func (l *Lifecycle) StudentJoined(ctx context.Context, sessionID string) (int, error) {
	count, err := l.repository.IncrementStudents(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	if state, ok := l.active[sessionID]; ok {
		if count > state.peakStudents {
			state.peakStudents = count
		}
		l.cancelEndLocked(sessionID, state)
	}
	l.mu.Unlock()

	l.RecordActivity(ctx, sessionID)
	return count, nil
}

// RecordActivity bumps the session's activity timestamps. Best effort.
func (l *Lifecycle) RecordActivity(ctx context.Context, sessionID string) {
	l.classrooms.Touch(sessionID)
	if err := l.repository.TouchSession(ctx, sessionID, l.now().UTC()); err != nil {
		l.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record activity")
	}
}

// SessionExpired implements router.SessionGate. A session is expired once it
// has ended or its classroom code has passed its TTL.
func (l *Lifecycle) SessionExpired(sessionID string) bool {
	l.mu.Lock()
	_, isActive := l.active[sessionID]
	l.mu.Unlock()
	if !isActive {
		return true
	}
	room, ok := l.classrooms.Lookup(sessionID)
	if !ok {
		return false // session created but code not yet issued
	}
	return l.now().After(room.ExpiresAt)
}

// OnPeerClosed implements websocket.CloseObserver. It runs after the peer
// left the registry, so the remaining counts describe the classroom without
// the departed peer.
func (l *Lifecycle) OnPeerClosed(ctx context.Context, p *ws.Peer) {
	sessionID := p.SessionID()
	if sessionID == "" {
		return
	}

	switch p.Role() {
	case types.RoleStudent:
		if p.Counted() {
			if _, err := l.repository.DecrementStudents(ctx, sessionID); err != nil {
				l.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to decrement student count")
			}
		}
	case types.RoleTeacher:
		l.classrooms.MarkTeacherDisconnected(sessionID)
	}

	students, teachers := l.registry.CountByRole(sessionID)
	switch {
	case students == 0 && teachers == 0:
		if err := l.EndSession(ctx, sessionID, "classroom empty"); err != nil && !errors.Is(err, ErrSessionEnded) {
			l.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to end empty session")
		}
	case teachers == 0, students == 0:
		// One side of the classroom remains. Hold the session open for the
		// grace window so the other side can return, then end it.
		l.scheduleEnd(sessionID)
	}
}

// scheduleEnd arms the grace timer for a session, if not already armed.
func (l *Lifecycle) scheduleEnd(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.active[sessionID]
	if !ok || state.endTimer != nil {
		return
	}
	state.endTimer = time.AfterFunc(l.graceTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.EndSession(ctx, sessionID, "grace period elapsed"); err != nil {
			l.log.Warn().Err(err).Str("session_id", sessionID).Msg("grace end failed")
		}
	})
	l.log.Info().
		Str("session_id", sessionID).
		Dur("grace", l.graceTimeout).
		Msg("session end scheduled")
}

func (l *Lifecycle) cancelEndLocked(sessionID string, state *liveState) {
	if state.endTimer != nil {
		state.endTimer.Stop()
		state.endTimer = nil
		l.log.Info().Str("session_id", sessionID).Msg("pending session end cancelled")
	}
}

// EndSession closes a session, classifies its quality, and notifies any
// remaining peers. Idempotent: later calls return ErrSessionEnded.
func (l *Lifecycle) EndSession(ctx context.Context, sessionID, reason string) error {
	l.mu.Lock()
	state, ok := l.active[sessionID]
	if !ok {
		l.mu.Unlock()
		return ErrSessionEnded
	}
	l.cancelEndLocked(sessionID, state)
	peak := state.peakStudents
	delete(l.active, sessionID)
	l.mu.Unlock()

	session, err := l.repository.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session for end: %w", err)
	}

	now := l.now().UTC()
	duration := now.Sub(session.StartTime)
	quality, qualityReason := classify(duration, peak, session.TotalTranslations)

	session.EndTime = &now
	session.IsActive = false
	session.Quality = quality
	session.QualityReason = qualityReason
	if err := l.repository.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session end: %w", err)
	}

	l.classrooms.Release(sessionID)
	metrics.SessionsEnded.WithLabelValues(quality).Inc()

	// Anyone still connected is told and disconnected.
	for _, peer := range l.registry.SessionPeers(sessionID) {
		l.writer.Send(peer, types.SessionExpiredFrame{
			Type:    types.MessageTypeSessionExpired,
			Message: "Classroom session has ended",
		})
		peer.CloseWithCode(types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)
	}

	l.log.Info().
		Str("session_id", sessionID).
		Str("quality", quality).
		Str("reason", reason).
		Dur("duration", duration).
		Int("peak_students", peak).
		Int("translations", session.TotalTranslations).
		Msg("session ended")
	return nil
}

// Close cancels all pending grace timers. Sessions stay active in storage so
// a restarted server can resume them.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sessionID, state := range l.active {
		l.cancelEndLocked(sessionID, state)
	}
}

// Resume reloads active sessions from storage after a restart so their
// classroom codes work again.
func (l *Lifecycle) Resume(ctx context.Context) error {
	sessions, err := l.repository.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range sessions {
		if _, ok := l.active[s.ID]; !ok {
			l.active[s.ID] = &liveState{peakStudents: s.StudentsCount}
		}
	}
	if len(sessions) > 0 {
		l.log.Info().Int("sessions", len(sessions)).Msg("active sessions resumed")
	}
	return nil
}

// boundSession loads the session a peer is already bound to, if it is still
// active and owned by teacherID. An empty teacherID keeps whatever owner the
// session has, which is how anonymous teachers re-register.
func (l *Lifecycle) boundSession(ctx context.Context, sessionID, teacherID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := l.repository.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load bound session: %w", err)
	}
	if !session.IsActive {
		return nil, nil
	}
	if teacherID != "" && session.TeacherID != teacherID {
		return nil, nil
	}
	return session, nil
}

func (l *Lifecycle) findActiveByTeacher(ctx context.Context, teacherID string) (*types.Session, error) {
	sessions, err := l.repository.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	for _, s := range sessions {
		if s.TeacherID == teacherID {
			return s, nil
		}
	}
	return nil, nil
}

// classify buckets an ended session. The thresholds separate real lessons
// from connect-and-leave noise and empty rehearsals.
func classify(duration time.Duration, peakStudents, translations int) (string, string) {
	switch {
	case peakStudents == 0 && translations == 0 && duration < minRealDuration:
		return types.QualityDead, "connect and leave"
	case duration < minRealDuration:
		return types.QualityTooShort, "shorter than 30 seconds"
	case peakStudents == 0:
		return types.QualityNoStudents, "no students joined"
	case translations == 0:
		return types.QualityNoActivity, "no translation activity"
	default:
		return types.QualityReal, "completed"
	}
}
