package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

// SettingsHandler merges client preference updates into the peer's stored
// settings.
type SettingsHandler struct {
	registry *ws.Registry
	writer   *ws.ResponseWriter
	log      zerolog.Logger
}

// NewSettingsHandler wires the settings handler.
func NewSettingsHandler(registry *ws.Registry, writer *ws.ResponseWriter) *SettingsHandler {
	return &SettingsHandler{
		registry: registry,
		writer:   writer,
		log:      logging.WithComponent("settings"),
	}
}

// Handle implements router.Handler. Updates are shallow merges: keys present
// in the frame win, everything else is kept. The legacy top-level
// ttsServiceType field is folded into the settings map.
func (h *SettingsHandler) Handle(_ context.Context, p *ws.Peer, env *types.Envelope) error {
	incoming := env.Settings
	if env.TTSServiceType != "" {
		if incoming == nil {
			incoming = types.Settings{}
		}
		incoming["ttsServiceType"] = env.TTSServiceType
	}

	if env.LanguageCode != "" {
		if !types.IsValidLanguageCode(env.LanguageCode) {
			return types.ErrInvalidLanguageCode
		}
		p.SetLanguageCode(env.LanguageCode)
	}

	merged := p.MergeSettings(incoming)

	h.writer.Send(p, types.SettingsAck{
		Type:     types.MessageTypeSettings,
		Status:   types.StatusSuccess,
		Settings: merged,
	})

	h.log.Debug().
		Str("peer_id", p.ID).
		Int("keys", len(merged)).
		Msg("settings updated")
	return nil
}
