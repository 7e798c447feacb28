// Package classroom issues and resolves the short join codes students use
// to attach to a teacher's session.
package classroom

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	maxGenerateAttempts = 10
)

// Classroom is one live code -> session binding.
type Classroom struct {
	Code             string
	SessionID        string
	TeacherConnected bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LastActivityAt   time.Time
}

// Service owns the in-memory code registry. Codes are ephemeral: they are
// never the session identifier, only a joining credential with a TTL.
type Service struct {
	mu        sync.RWMutex
	byCode    map[string]*Classroom
	bySession map[string]*Classroom

	expiration      time.Duration
	cleanupInterval time.Duration

	stopCh  chan struct{}
	stopped sync.Once
	log     zerolog.Logger

	now func() time.Time
}

// NewService creates a code service with the given TTL and cleanup cadence.
func NewService(expiration, cleanupInterval time.Duration) *Service {
	return &Service{
		byCode:          make(map[string]*Classroom),
		bySession:       make(map[string]*Classroom),
		expiration:      expiration,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		log:             logging.WithComponent("classroom"),
		now:             time.Now,
	}
}

// Ensure returns the classroom for the session, minting a code on first call.
// Reconnecting teachers get their existing unexpired code back.
func (s *Service) Ensure(sessionID string) (*Classroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.bySession[sessionID]; ok && now.Before(c.ExpiresAt) {
		c.TeacherConnected = true
		c.LastActivityAt = now
		return snapshot(c), nil
	}

	code, err := s.generateLocked()
	if err != nil {
		return nil, err
	}

	c := &Classroom{
		Code:             code,
		SessionID:        sessionID,
		TeacherConnected: true,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.expiration),
		LastActivityAt:   now,
	}
	if old, ok := s.bySession[sessionID]; ok {
		delete(s.byCode, old.Code)
	}
	s.byCode[code] = c
	s.bySession[sessionID] = c

	s.log.Info().Str("code", code).Str("session_id", sessionID).Msg("classroom code issued")
	return snapshot(c), nil
}

// Resolve validates a student-supplied code and returns its classroom.
// A code is valid only while unexpired and while its teacher is connected.
// Successful resolution counts as classroom activity.
func (s *Service) Resolve(code string) (*Classroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byCode[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if s.now().After(c.ExpiresAt) {
		return nil, ErrCodeExpired
	}
	if !c.TeacherConnected {
		return nil, ErrTeacherAbsent
	}
	c.LastActivityAt = s.now()
	return snapshot(c), nil
}

// Lookup returns the classroom for a session without validity checks.
func (s *Service) Lookup(sessionID string) (*Classroom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return snapshot(c), true
}

// MarkTeacherDisconnected flags the classroom so new students are refused
// until the teacher returns. The code itself survives for reconnects.
func (s *Service) MarkTeacherDisconnected(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.bySession[sessionID]; ok {
		c.TeacherConnected = false
	}
}

// Touch records activity on a session's classroom.
func (s *Service) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.bySession[sessionID]; ok {
		c.LastActivityAt = s.now()
	}
}

// Release drops the code binding when a session ends.
func (s *Service) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.bySession[sessionID]; ok {
		delete(s.byCode, c.Code)
		delete(s.bySession, sessionID)
	}
}

// Count returns the number of live code bindings.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCode)
}

// Start launches the periodic expired-code sweep.
func (s *Service) Start() {
	go func() {
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the cleanup goroutine.
func (s *Service) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

func (s *Service) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, c := range s.byCode {
		if now.After(c.ExpiresAt) {
			delete(s.byCode, code)
			delete(s.bySession, c.SessionID)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("remaining", len(s.byCode)).Msg("expired classroom codes swept")
	}
}

// generateLocked mints a random unused 6-character code. Callers hold s.mu.
func (s *Service) generateLocked() (string, error) {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code := make([]byte, codeLength)
		for i, b := range buf {
			code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		if _, taken := s.byCode[string(code)]; !taken {
			return string(code), nil
		}
	}
	return "", ErrExhausted
}

func snapshot(c *Classroom) *Classroom {
	copied := *c
	return &copied
}
