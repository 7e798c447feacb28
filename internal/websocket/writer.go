package websocket

import (
	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	"classrelay/pkg/types"
)

// ResponseWriter is the reply surface handlers use. Delivery failures to a
// single peer are logged and swallowed so one slow client never aborts a
// broadcast or a handler.
type ResponseWriter struct {
	log zerolog.Logger
}

// NewResponseWriter creates the shared response writer.
func NewResponseWriter() *ResponseWriter {
	return &ResponseWriter{log: logging.WithComponent("writer")}
}

// Send delivers a frame to one peer, logging on failure.
func (w *ResponseWriter) Send(p *Peer, frame any) {
	if err := p.Send(frame); err != nil {
		w.log.Warn().
			Err(err).
			Str("peer_id", p.ID).
			Str("session_id", p.SessionID()).
			Msg("frame delivery failed")
	}
}

// SendError delivers an error frame to one peer.
func (w *ResponseWriter) SendError(p *Peer, code, message string) {
	w.Send(p, types.ErrorFrame{
		Type:    types.MessageTypeError,
		Code:    code,
		Message: message,
	})
}

// SendErrorAndClose delivers an error frame, then closes with the given
// close code. The close proceeds even if the error frame could not be sent.
func (w *ResponseWriter) SendErrorAndClose(p *Peer, code, message string, closeCode int, closeReason string) {
	w.SendError(p, code, message)
	p.CloseWithCode(closeCode, closeReason)
}

// Broadcast delivers a frame to every peer in the slice.
func (w *ResponseWriter) Broadcast(peers []*Peer, frame any) {
	for _, p := range peers {
		w.Send(p, frame)
	}
}
