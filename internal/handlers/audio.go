package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	"classrelay/internal/session"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

// AudioHandler accepts raw audio chunks from teachers. Speech recognition
// runs client-side, so the server only treats the chunk as liveness and
// activity evidence and drops the payload.
type AudioHandler struct {
	lifecycle *session.Lifecycle
	log       zerolog.Logger
}

// NewAudioHandler wires the audio handler.
func NewAudioHandler(lifecycle *session.Lifecycle) *AudioHandler {
	return &AudioHandler{
		lifecycle: lifecycle,
		log:       logging.WithComponent("audio"),
	}
}

// Handle implements router.Handler.
func (h *AudioHandler) Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	if p.Role() != types.RoleTeacher {
		return fmt.Errorf("only teachers can send audio")
	}
	if env.Data == "" {
		return fmt.Errorf("audio frame missing data")
	}

	h.lifecycle.RecordActivity(ctx, p.SessionID())
	h.log.Debug().
		Str("session_id", p.SessionID()).
		Int("bytes", len(env.Data)).
		Msg("audio chunk received")
	return nil
}
