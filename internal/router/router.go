// Package router dispatches inbound frames to typed handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

// Handler processes one parsed frame. A returned error is reported to the
// sending peer as an error frame; it never tears the connection down.
type Handler interface {
	Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, p *ws.Peer, env *types.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	return f(ctx, p, env)
}

// SessionGate answers whether a peer's session is still live. Frames on a
// dead session are refused, except the types needed to re-establish one.
type SessionGate interface {
	SessionExpired(sessionID string) bool
}

// Router parses envelopes, enforces rate limits and the expired-session
// gate, and dispatches to the handler registered for the frame type.
// Dispatch runs synchronously in the caller's read loop.
type Router struct {
	handlers map[string]Handler
	exempt   map[string]bool
	gate     SessionGate
	limiter  *RateLimiter
	writer   *ws.ResponseWriter
	log      zerolog.Logger
}

// New creates a router. Register, ping, and pong frames bypass the
// expired-session gate so clients can recover and liveness keeps working.
func New(gate SessionGate, limiter *RateLimiter, writer *ws.ResponseWriter) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		exempt: map[string]bool{
			types.MessageTypeRegister: true,
			types.MessageTypePing:     true,
			types.MessageTypePong:     true,
		},
		gate:    gate,
		limiter: limiter,
		writer:  writer,
		log:     logging.WithComponent("router"),
	}
}

// Register binds a handler to a message type.
func (r *Router) Register(messageType string, h Handler) error {
	if _, exists := r.handlers[messageType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, messageType)
	}
	r.handlers[messageType] = h
	return nil
}

// MustRegister is Register for wiring code, where a duplicate is a bug.
func (r *Router) MustRegister(messageType string, h Handler) {
	if err := r.Register(messageType, h); err != nil {
		panic(err)
	}
}

// HandleFrame implements websocket.FrameHandler.
func (r *Router) HandleFrame(ctx context.Context, p *ws.Peer, data []byte) {
	if r.limiter != nil && !r.limiter.Allow(p.ID) {
		r.log.Warn().Str("peer_id", p.ID).Msg("rate limit exceeded, dropping frame")
		return
	}

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn().Err(err).Str("peer_id", p.ID).Msg("malformed frame dropped")
		return
	}
	if env.Type == "" {
		r.log.Warn().Str("peer_id", p.ID).Msg("frame missing type dropped")
		return
	}

	if sid := p.SessionID(); sid != "" && !r.exempt[env.Type] && r.gate.SessionExpired(sid) {
		r.writer.Send(p, types.SessionExpiredFrame{
			Type:    types.MessageTypeSessionExpired,
			Message: "Classroom session has ended",
		})
		p.CloseWithCode(types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)
		return
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		// Unknown types are dropped, not answered, so protocol additions on
		// newer clients don't trigger error storms.
		r.log.Warn().Str("peer_id", p.ID).Str("type", env.Type).Msg("unknown message type dropped")
		return
	}

	r.dispatch(ctx, h, p, &env)
}

// OnPeerClosed implements websocket.CloseObserver. It releases the peer's
// rate-limit window.
func (r *Router) OnPeerClosed(_ context.Context, p *ws.Peer) {
	if r.limiter != nil {
		r.limiter.Forget(p.ID)
	}
}

// dispatch isolates handler panics so one bad frame cannot take down the
// peer's read loop.
func (r *Router) dispatch(ctx context.Context, h Handler, p *ws.Peer, env *types.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Interface("panic", rec).
				Str("peer_id", p.ID).
				Str("type", env.Type).
				Msg("handler panicked")
			r.writer.SendError(p, types.ErrCodeInvalidRequest, "internal error")
		}
	}()

	if err := h.Handle(ctx, p, env); err != nil {
		r.log.Warn().
			Err(err).
			Str("peer_id", p.ID).
			Str("type", env.Type).
			Msg("handler rejected frame")
		r.writer.SendError(p, errorCode(err), err.Error())
	}
}

// CodedError carries a wire error code alongside the cause. Handlers wrap
// their failures in it when the default INVALID_REQUEST code is wrong.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }
func (e *CodedError) Unwrap() error { return e.Err }

func errorCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return types.ErrCodeInvalidRequest
}
