// Package handlers implements the typed frame handlers the router
// dispatches to.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"classrelay/internal/classroom"
	"classrelay/internal/logging"
	"classrelay/internal/session"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

// TokenVerifier resolves a bearer token to the teacher account it belongs
// to. Implemented by auth.Service.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RegisterHandler establishes a peer's identity. Teachers get (or resume) a
// session and its classroom code; students attach to a classroom by code.
type RegisterHandler struct {
	lifecycle  *session.Lifecycle
	classrooms *classroom.Service
	registry   *ws.Registry
	writer     *ws.ResponseWriter
	tokens     TokenVerifier
	log        zerolog.Logger
}

// NewRegisterHandler wires the register handler.
func NewRegisterHandler(lifecycle *session.Lifecycle, classrooms *classroom.Service, registry *ws.Registry, writer *ws.ResponseWriter, tokens TokenVerifier) *RegisterHandler {
	return &RegisterHandler{
		lifecycle:  lifecycle,
		classrooms: classrooms,
		registry:   registry,
		writer:     writer,
		tokens:     tokens,
		log:        logging.WithComponent("register"),
	}
}

// Handle implements router.Handler.
func (h *RegisterHandler) Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	if !types.IsValidRole(env.Role) {
		return fmt.Errorf("%w: %q", types.ErrInvalidRole, env.Role)
	}
	if !types.IsValidLanguageCode(env.LanguageCode) {
		return fmt.Errorf("%w: %q", types.ErrInvalidLanguageCode, env.LanguageCode)
	}
	if env.Name != "" && !types.IsValidUsername(env.Name) {
		return fmt.Errorf("%w: %q", types.ErrInvalidUsername, env.Name)
	}

	switch types.Role(env.Role) {
	case types.RoleTeacher:
		return h.registerTeacher(ctx, p, env)
	default:
		return h.registerStudent(ctx, p, env)
	}
}

func (h *RegisterHandler) registerTeacher(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	teacherID, ok := h.verifyTeacher(p, env)
	if !ok {
		return nil
	}

	sess, room, err := h.lifecycle.EnsureTeacherSession(ctx, p.SessionID(), teacherID, env.LanguageCode)
	if err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	p.Register(types.RoleTeacher, sess.ID, env.Name, env.LanguageCode)
	h.registry.Rebind(p)

	settings := p.Settings()
	if len(env.Settings) > 0 {
		settings = p.MergeSettings(env.Settings)
	}

	h.writer.Send(p, types.RegisterAck{
		Type:   types.MessageTypeRegister,
		Status: types.StatusSuccess,
		Data: types.RegisterData{
			Role:         string(types.RoleTeacher),
			LanguageCode: env.LanguageCode,
			Settings:     settings,
		},
	})
	h.writer.Send(p, types.ClassroomCodeFrame{
		Type:      types.MessageTypeClassroomCode,
		Code:      room.Code,
		SessionID: sess.ID,
		ExpiresAt: room.ExpiresAt.UnixMilli(),
	})

	h.log.Info().
		Str("peer_id", p.ID).
		Str("session_id", sess.ID).
		Str("language", env.LanguageCode).
		Msg("teacher registered")
	return nil
}

func (h *RegisterHandler) registerStudent(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	sessionID := p.SessionID()

	if env.ClassroomCode != "" {
		room, err := h.resolve(env.ClassroomCode)
		if err != nil {
			h.log.Info().
				Str("peer_id", p.ID).
				Str("code", env.ClassroomCode).
				Err(err).
				Msg("student rejected")
			h.writer.SendErrorAndClose(p,
				types.ErrCodeInvalidClassroom, "Invalid classroom session",
				types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)
			return nil
		}
		sessionID = room.SessionID
	}

	if sessionID == "" {
		h.writer.SendErrorAndClose(p,
			types.ErrCodeInvalidClassroom, "Invalid classroom session",
			types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)
		return nil
	}

	p.Register(types.RoleStudent, sessionID, env.Name, env.LanguageCode)
	h.registry.Rebind(p)

	settings := p.Settings()
	if len(env.Settings) > 0 {
		settings = p.MergeSettings(env.Settings)
	}

	// First successful register for this connection joins the durable count.
	if p.MarkCounted() {
		if _, err := h.lifecycle.StudentJoined(ctx, sessionID); err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to count student join")
		}
	}

	h.writer.Send(p, types.RegisterAck{
		Type:   types.MessageTypeRegister,
		Status: types.StatusSuccess,
		Data: types.RegisterData{
			Role:         string(types.RoleStudent),
			LanguageCode: env.LanguageCode,
			Settings:     settings,
		},
	})

	if teacher, ok := h.registry.Teacher(sessionID); ok {
		h.writer.Send(teacher, types.StudentJoinedFrame{
			Type: types.MessageTypeStudentJoined,
			Payload: types.StudentJoinedPayload{
				Name:     displayName(env.Name),
				Language: env.LanguageCode,
			},
		})
	}

	h.log.Info().
		Str("peer_id", p.ID).
		Str("session_id", sessionID).
		Str("language", env.LanguageCode).
		Msg("student registered")
	return nil
}

// verifyTeacher establishes which teacher account, if any, is registering.
// A teacherId claim is only honored when backed by a valid bearer token;
// without one the teacher stays anonymous. Returns false after closing the
// connection on an authentication failure.
func (h *RegisterHandler) verifyTeacher(p *ws.Peer, env *types.Envelope) (string, bool) {
	if env.AuthToken == "" {
		if env.TeacherID != "" {
			h.rejectAuth(p, "teacherId claimed without a token")
			return "", false
		}
		return "", true
	}

	if h.tokens == nil {
		h.rejectAuth(p, "no token verifier configured")
		return "", false
	}
	userID, err := h.tokens.Verify(env.AuthToken)
	if err != nil {
		h.rejectAuth(p, err.Error())
		return "", false
	}
	if env.TeacherID != "" && env.TeacherID != userID {
		h.rejectAuth(p, "teacherId does not match token")
		return "", false
	}
	return userID, true
}

func (h *RegisterHandler) rejectAuth(p *ws.Peer, detail string) {
	h.log.Info().Str("peer_id", p.ID).Str("detail", detail).Msg("teacher auth rejected")
	h.writer.SendErrorAndClose(p,
		types.ErrCodeAuthFailed, "Authentication failed",
		types.ClosePolicyViolation, types.CloseReasonAuthFailed)
}

func (h *RegisterHandler) resolve(code string) (*classroom.Classroom, error) {
	if !types.IsValidClassroomCode(code) {
		return nil, types.ErrInvalidClassroomCode
	}
	room, err := h.classrooms.Resolve(code)
	if err != nil {
		return nil, err
	}
	if h.lifecycle.SessionExpired(room.SessionID) {
		return nil, errors.New("session no longer active")
	}
	return room, nil
}

func displayName(name string) string {
	if name == "" {
		return "Student"
	}
	return name
}
