package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"classrelay/internal/classroom"
	"classrelay/internal/logging"
	"classrelay/internal/metrics"
	"classrelay/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary school networks.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// FrameHandler consumes one inbound text frame. Dispatch is synchronous in
// the read loop, which is what keeps per-peer delivery ordered.
type FrameHandler interface {
	HandleFrame(ctx context.Context, p *Peer, data []byte)
}

// CloseObserver is notified after a peer leaves the registry.
type CloseObserver interface {
	OnPeerClosed(ctx context.Context, p *Peer)
}

// CloseObservers notifies each observer in order.
type CloseObservers []CloseObserver

func (o CloseObservers) OnPeerClosed(ctx context.Context, p *Peer) {
	for _, ob := range o {
		ob.OnPeerClosed(ctx, p)
	}
}

// Handler upgrades HTTP requests and runs the per-peer read loop.
type Handler struct {
	registry    *Registry
	classrooms  *classroom.Service
	frames      FrameHandler
	closer      CloseObserver
	writer      *ResponseWriter
	readTimeout time.Duration
	writeBuffer int
	log         zerolog.Logger
}

// NewHandler wires the connection entry point.
func NewHandler(registry *Registry, classrooms *classroom.Service, frames FrameHandler, closer CloseObserver, writer *ResponseWriter, readTimeout time.Duration, writeBuffer int) *Handler {
	return &Handler{
		registry:    registry,
		classrooms:  classrooms,
		frames:      frames,
		closer:      closer,
		writer:      writer,
		readTimeout: readTimeout,
		writeBuffer: writeBuffer,
		log:         logging.WithComponent("websocket"),
	}
}

// ServeWS handles a WebSocket connection request. An optional ?code= query
// parameter lets students attach to a classroom at open; full identity is
// established later by the register frame.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	p := NewPeer(uuid.New().String(), conn, h.writeBuffer)

	ack := types.ConnectionAck{
		Type:   types.MessageTypeConnection,
		Status: types.StatusConnected,
	}

	if code != "" {
		room, err := h.resolveCode(code)
		if err != nil {
			h.log.Info().Str("code", code).Err(err).Msg("classroom code rejected at open")
			h.writer.SendErrorAndClose(p,
				types.ErrCodeInvalidClassroom, "Invalid classroom session",
				types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)
			return
		}
		p.BindSession(room.SessionID)
		ack.SessionID = room.SessionID
		ack.ClassroomCode = room.Code
	}

	if err := h.registry.Add(p); err != nil {
		h.log.Error().Err(err).Str("peer_id", p.ID).Msg("failed to register peer")
		_ = p.Close()
		return
	}
	metrics.ConnectionsActive.Inc()

	h.writer.Send(p, ack)

	go h.readLoop(p)
}

func (h *Handler) resolveCode(code string) (*classroom.Classroom, error) {
	if !types.IsValidClassroomCode(code) {
		return nil, types.ErrInvalidClassroomCode
	}
	return h.classrooms.Resolve(code)
}

// readLoop pumps inbound frames into the frame handler until the peer drops.
func (h *Handler) readLoop(p *Peer) {
	defer func() {
		if h.registry.Remove(p) {
			metrics.ConnectionsActive.Dec()
		}
		h.closer.OnPeerClosed(context.Background(), p)
		_ = p.Close()
	}()

	if err := p.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		return
	}
	p.conn.SetPongHandler(func(string) error {
		p.MarkAlive()
		return p.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("peer_id", p.ID).Msg("read loop ended")
			}
			return
		}
		if err := p.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return
		}
		p.MarkAlive()

		if messageType != websocket.TextMessage {
			continue
		}
		h.frames.HandleFrame(p.ctx, p, data)
	}
}
