// Package websocket owns the live connection layer: the peer wrapper with
// its single writer goroutine, the registry, and heartbeat liveness.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classrelay/pkg/types"
)

const (
	writeTimeout = 5 * time.Second
	closeGrace   = time.Second
)

// Peer wraps one WebSocket connection. All writes are serialized through a
// single goroutine; concurrent WriteMessage calls on a gorilla connection
// are a race.
type Peer struct {
	ID string

	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu           sync.RWMutex
	role         types.Role
	sessionID    string
	name         string
	languageCode string
	settings     types.Settings
	registered   bool
	counted      bool
	alive        bool
	connectedAt  time.Time
}

// NewPeer wraps an upgraded connection and starts its write loop.
func NewPeer(id string, conn *websocket.Conn, writeBuffer int) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		ID:          id,
		conn:        conn,
		writeCh:     make(chan []byte, writeBuffer),
		ctx:         ctx,
		cancel:      cancel,
		alive:       true,
		settings:    types.Settings{},
		connectedAt: time.Now(),
	}
	go p.writeLoop()
	return p
}

func (p *Peer) writeLoop() {
	for {
		select {
		case data := <-p.writeCh:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				p.cancel()
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.cancel()
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Send marshals v and queues it for the write loop.
func (p *Peer) Send(v any) error {
	select {
	case <-p.ctx.Done():
		return ErrPeerClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case p.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-p.ctx.Done():
		return ErrPeerClosed
	}
}

// Close tears down the connection. Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}

// CloseWithCode sends a close frame with the given code and reason, then
// tears the connection down shortly after so the frame has a chance to flush.
func (p *Peer) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(closeGrace)
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	time.AfterFunc(closeGrace, func() { _ = p.Close() })
}

// Done exposes the peer's lifetime for goroutines tied to it.
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Register records the identity established by a register frame.
func (p *Peer) Register(role types.Role, sessionID, name, languageCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.role = role
	p.sessionID = sessionID
	p.name = name
	p.languageCode = languageCode
	p.registered = true
}

// BindSession attaches a session before registration completes, so an
// unregistered peer can still be associated with a classroom.
func (p *Peer) BindSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
}

func (p *Peer) Registered() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registered
}

func (p *Peer) Role() types.Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.role
}

func (p *Peer) SessionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionID
}

func (p *Peer) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Peer) LanguageCode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.languageCode
}

// SetLanguageCode updates the peer's target language after registration.
func (p *Peer) SetLanguageCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.languageCode = code
}

// Settings returns a copy of the peer's current settings.
func (p *Peer) Settings() types.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(types.Settings, len(p.settings))
	for k, v := range p.settings {
		out[k] = v
	}
	return out
}

// MergeSettings shallow-merges incoming settings over the stored ones and
// returns the result.
func (p *Peer) MergeSettings(incoming types.Settings) types.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = p.settings.Merge(incoming)
	out := make(types.Settings, len(p.settings))
	for k, v := range p.settings {
		out[k] = v
	}
	return out
}

// MarkCounted flips the peer to counted exactly once. A peer is counted when
// its join has been reflected in the session's durable student count, so the
// matching decrement on disconnect happens at most once.
func (p *Peer) MarkCounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counted {
		return false
	}
	p.counted = true
	return true
}

func (p *Peer) Counted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counted
}

// MarkAlive records evidence of liveness (any inbound frame or pong).
func (p *Peer) MarkAlive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = true
}

// MarkStale clears the liveness flag; the next health sweep terminates the
// peer unless something marks it alive again first.
func (p *Peer) MarkStale() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}

func (p *Peer) Alive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alive
}

func (p *Peer) ConnectedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectedAt
}

// Ping sends a protocol-level ping control frame.
func (p *Peer) Ping() error {
	return p.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
}
