package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "classrelay/internal/websocket"
	"classrelay/pkg/types"
)

type stubGate struct{ expired bool }

func (g *stubGate) SessionExpired(string) bool { return g.expired }

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// dialPeer returns a server-side Peer and the client end of the connection.
func dialPeer(t *testing.T) (*ws.Peer, *websocket.Conn) {
	t.Helper()

	peerCh := make(chan *ws.Peer, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		peerCh <- ws.NewPeer("test-peer", conn, 100)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	p := <-peerCh
	t.Cleanup(func() { _ = p.Close() })
	return p, client
}

func readFrame(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func newTestRouter(gate SessionGate) *Router {
	return New(gate, nil, ws.NewResponseWriter())
}

func TestRouterDispatch(t *testing.T) {
	r := newTestRouter(&stubGate{})
	p, _ := dialPeer(t)

	var got *types.Envelope
	r.MustRegister("transcription", HandlerFunc(func(_ context.Context, _ *ws.Peer, env *types.Envelope) error {
		got = env
		return nil
	}))

	r.HandleFrame(context.Background(), p, []byte(`{"type":"transcription","text":"hello"}`))
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Text)
}

func TestRouterUnknownTypeDropped(t *testing.T) {
	r := newTestRouter(&stubGate{})
	p, client := dialPeer(t)

	r.HandleFrame(context.Background(), p, []byte(`{"type":"bogus"}`))

	// Unknown types are logged and dropped, never answered.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestRouterMalformedFrameDropped(t *testing.T) {
	r := newTestRouter(&stubGate{})
	p, client := dialPeer(t)

	r.HandleFrame(context.Background(), p, []byte(`{not json`))
	r.HandleFrame(context.Background(), p, []byte(`{"text":"no type"}`))

	// Nothing is sent back for malformed frames.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestRouterDuplicateRegistration(t *testing.T) {
	r := newTestRouter(&stubGate{})
	h := HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error { return nil })

	require.NoError(t, r.Register("ping", h))
	assert.ErrorIs(t, r.Register("ping", h), ErrDuplicateHandler)
}

func TestRouterExpiredSessionGate(t *testing.T) {
	gate := &stubGate{expired: true}
	r := newTestRouter(gate)
	p, client := dialPeer(t)
	p.BindSession("s1")

	called := false
	r.MustRegister("transcription", HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error {
		called = true
		return nil
	}))

	r.HandleFrame(context.Background(), p, []byte(`{"type":"transcription","text":"hi"}`))
	assert.False(t, called)

	frame := readFrame(t, client)
	assert.Equal(t, types.MessageTypeSessionExpired, frame["type"])

	// The connection is closed with the invalid-classroom code.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, types.CloseInvalidClassroom, closeErr.Code)
}

func TestRouterExpiredGateExemptsRecoveryFrames(t *testing.T) {
	gate := &stubGate{expired: true}
	r := newTestRouter(gate)
	p, _ := dialPeer(t)
	p.BindSession("s1")

	handled := make(map[string]bool)
	for _, mt := range []string{types.MessageTypeRegister, types.MessageTypePing, types.MessageTypePong} {
		mt := mt
		r.MustRegister(mt, HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error {
			handled[mt] = true
			return nil
		}))
	}

	r.HandleFrame(context.Background(), p, []byte(`{"type":"register"}`))
	r.HandleFrame(context.Background(), p, []byte(`{"type":"ping"}`))
	r.HandleFrame(context.Background(), p, []byte(`{"type":"pong"}`))

	assert.True(t, handled[types.MessageTypeRegister])
	assert.True(t, handled[types.MessageTypePing])
	assert.True(t, handled[types.MessageTypePong])
}

func TestRouterHandlerErrorCodes(t *testing.T) {
	r := newTestRouter(&stubGate{})
	p, client := dialPeer(t)

	r.MustRegister("tts_request", HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error {
		return &CodedError{Code: types.ErrCodeTTSFailed, Err: errors.New("synthesis unavailable")}
	}))

	r.HandleFrame(context.Background(), p, []byte(`{"type":"tts_request"}`))

	frame := readFrame(t, client)
	assert.Equal(t, types.MessageTypeError, frame["type"])
	assert.Equal(t, types.ErrCodeTTSFailed, frame["code"])
}

func TestRouterRecoversFromPanic(t *testing.T) {
	r := newTestRouter(&stubGate{})
	p, client := dialPeer(t)

	r.MustRegister("settings", HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error {
		panic("boom")
	}))

	assert.NotPanics(t, func() {
		r.HandleFrame(context.Background(), p, []byte(`{"type":"settings"}`))
	})

	frame := readFrame(t, client)
	assert.Equal(t, types.MessageTypeError, frame["type"])
}

func TestRouterRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2)
	r := New(&stubGate{}, limiter, ws.NewResponseWriter())
	p, _ := dialPeer(t)

	var calls int
	r.MustRegister("ping", HandlerFunc(func(context.Context, *ws.Peer, *types.Envelope) error {
		calls++
		return nil
	}))

	for i := 0; i < 5; i++ {
		r.HandleFrame(context.Background(), p, []byte(`{"type":"ping"}`))
	}
	assert.Equal(t, 2, calls)
}

func TestRouterForgetsLimiterWindowOnClose(t *testing.T) {
	limiter := NewRateLimiter(1)
	r := New(&stubGate{}, limiter, ws.NewResponseWriter())
	p, _ := dialPeer(t)

	require.True(t, limiter.Allow(p.ID))
	require.False(t, limiter.Allow(p.ID))

	// A reconnecting peer starts with a fresh window.
	r.OnPeerClosed(context.Background(), p)
	assert.True(t, limiter.Allow(p.ID))
}
