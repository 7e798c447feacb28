package handlers

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	"classrelay/internal/router"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// TTSHandler serves on-demand speech synthesis, used by students to replay
// a translation out loud.
type TTSHandler struct {
	speech interfaces.SpeechPipeline
	writer *ws.ResponseWriter
	log    zerolog.Logger
}

// NewTTSHandler wires the TTS handler.
func NewTTSHandler(speech interfaces.SpeechPipeline, writer *ws.ResponseWriter) *TTSHandler {
	return &TTSHandler{
		speech: speech,
		writer: writer,
		log:    logging.WithComponent("tts"),
	}
}

// Handle implements router.Handler.
func (h *TTSHandler) Handle(ctx context.Context, p *ws.Peer, env *types.Envelope) error {
	text := strings.TrimSpace(env.Text)
	if text == "" {
		return types.ErrEmptyText
	}
	lang := env.LanguageCode
	if lang == "" {
		lang = p.LanguageCode()
	}
	if !types.IsValidLanguageCode(lang) {
		return types.ErrInvalidLanguageCode
	}

	hint := env.TTSServiceType
	if hint == "" {
		hint = p.Settings().TTSServiceType()
	}

	audio, err := h.speech.Synthesize(ctx, text, lang, hint)
	if err != nil {
		h.log.Warn().
			Err(err).
			Str("peer_id", p.ID).
			Str("language", lang).
			Msg("synthesis failed")
		return &router.CodedError{Code: types.ErrCodeTTSFailed, Err: err}
	}

	resp := types.TTSResponseFrame{
		Type:            types.MessageTypeTTSResponse,
		Status:          types.StatusSuccess,
		UseClientSpeech: audio.UseClientSpeech,
		SpeechParams:    audio.SpeechParams,
	}
	if len(audio.Data) > 0 {
		resp.AudioData = base64.StdEncoding.EncodeToString(audio.Data)
	}
	h.writer.Send(p, resp)
	return nil
}
