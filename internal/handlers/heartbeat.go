package handlers

import (
	"context"
	"time"

	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

// HeartbeatHandler answers application-level pings and absorbs pongs. The
// read loop already marks the peer alive on any frame; the explicit pong
// handler just keeps unknown-type errors out of the liveness path.
type HeartbeatHandler struct {
	writer *ws.ResponseWriter
}

// NewHeartbeatHandler wires the heartbeat handler.
func NewHeartbeatHandler(writer *ws.ResponseWriter) *HeartbeatHandler {
	return &HeartbeatHandler{writer: writer}
}

// HandlePing implements router.Handler for ping frames.
func (h *HeartbeatHandler) HandlePing(_ context.Context, p *ws.Peer, env *types.Envelope) error {
	h.writer.Send(p, types.PongFrame{
		Type:              types.MessageTypePong,
		Timestamp:         time.Now().UnixMilli(),
		OriginalTimestamp: env.Timestamp,
	})
	return nil
}

// HandlePong implements router.Handler for pong frames.
func (h *HeartbeatHandler) HandlePong(_ context.Context, p *ws.Peer, _ *types.Envelope) error {
	p.MarkAlive()
	return nil
}
