package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"classrelay/internal/fanout"
	"classrelay/internal/logging"
	"classrelay/internal/metrics"
	"classrelay/internal/session"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// TranscriptionHandler fans a teacher utterance out to the classroom.
type TranscriptionHandler struct {
	fanout     *fanout.Service
	lifecycle  *session.Lifecycle
	repository interfaces.SessionRepository
	log        zerolog.Logger
}

// NewTranscriptionHandler wires the transcription handler.
func NewTranscriptionHandler(fanoutSvc *fanout.Service, lifecycle *session.Lifecycle, repository interfaces.SessionRepository) *TranscriptionHandler {
	return &TranscriptionHandler{
		fanout:     fanoutSvc,
		lifecycle:  lifecycle,
		repository: repository,
		log:        logging.WithComponent("transcription"),
	}
}

// Handle implements router.Handler. The fan-out call blocks until every
// language leg completes, so utterances from one teacher reach each student
// in speaking order.
func (h *TranscriptionHandler) Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	if p.Role() != types.RoleTeacher {
		return fmt.Errorf("only teachers can send transcriptions")
	}
	text := strings.TrimSpace(env.Text)
	if text == "" {
		return types.ErrEmptyText
	}

	sessionID := p.SessionID()
	metrics.TranscriptionsTotal.Inc()
	h.lifecycle.RecordActivity(ctx, sessionID)

	// The transcript record is best effort; the lesson continues even if
	// storage is down.
	if err := h.repository.AppendTranscript(ctx, &types.Transcript{
		SessionID: sessionID,
		Text:      text,
		Language:  p.LanguageCode(),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to store transcript")
	}

	// The translation total counts distinct target languages per utterance,
	// not per-student frames, so two same-language students add one.
	languages, frames := h.fanout.Broadcast(ctx, sessionID, p.LanguageCode(), text)
	if languages > 0 {
		if err := h.repository.AddTranslations(ctx, sessionID, languages); err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to bump translation total")
		}
	}

	h.log.Debug().
		Str("session_id", sessionID).
		Int("languages", languages).
		Int("frames", frames).
		Int("chars", len(text)).
		Msg("transcription fanned out")
	return nil
}
