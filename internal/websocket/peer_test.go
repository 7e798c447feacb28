package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classrelay/pkg/types"
)

// dialTestPeer spins up a server that wraps the accepted connection in a
// Peer and returns both ends.
func dialTestPeer(t *testing.T) (*Peer, *websocket.Conn) {
	t.Helper()

	peerCh := make(chan *Peer, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		peerCh <- NewPeer("test-peer", conn, 100)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	p := <-peerCh
	t.Cleanup(func() { _ = p.Close() })
	return p, client
}

func TestPeerSendDeliversInOrder(t *testing.T) {
	p, client := dialTestPeer(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Send(map[string]int{"seq": i}))
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)

		var msg map[string]int
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, i, msg["seq"])
	}
}

func TestPeerSendAfterClose(t *testing.T) {
	p, _ := dialTestPeer(t)

	require.NoError(t, p.Close())
	err := p.Send(map[string]string{"type": "ping"})
	assert.ErrorIs(t, err, ErrPeerClosed)

	// Close is idempotent.
	require.NoError(t, p.Close())
}

func TestPeerSendUnmarshalable(t *testing.T) {
	p, _ := dialTestPeer(t)

	err := p.Send(make(chan int))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestPeerCloseWithCode(t *testing.T) {
	p, client := dialTestPeer(t)

	p.CloseWithCode(types.CloseInvalidClassroom, types.CloseReasonInvalidClassroom)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, types.CloseInvalidClassroom, closeErr.Code)
	assert.Equal(t, types.CloseReasonInvalidClassroom, closeErr.Text)
}

func TestPeerIdentity(t *testing.T) {
	p := newTestPeer("p1")

	assert.False(t, p.Registered())
	assert.Equal(t, types.RoleUnset, p.Role())

	p.Register(types.RoleStudent, "s1", "ana", "es-ES")
	assert.True(t, p.Registered())
	assert.Equal(t, types.RoleStudent, p.Role())
	assert.Equal(t, "s1", p.SessionID())
	assert.Equal(t, "ana", p.Name())
	assert.Equal(t, "es-ES", p.LanguageCode())
}

func TestPeerCountedOnce(t *testing.T) {
	p := newTestPeer("p1")

	assert.False(t, p.Counted())
	assert.True(t, p.MarkCounted())
	assert.False(t, p.MarkCounted())
	assert.True(t, p.Counted())
}

func TestPeerLiveness(t *testing.T) {
	p := newTestPeer("p1")

	assert.True(t, p.Alive())
	p.MarkStale()
	assert.False(t, p.Alive())
	p.MarkAlive()
	assert.True(t, p.Alive())
}

func TestPeerSettingsMerge(t *testing.T) {
	p := newTestPeer("p1")

	merged := p.MergeSettings(types.Settings{"ttsServiceType": "browser", "speed": 1.0})
	assert.Equal(t, "browser", merged["ttsServiceType"])

	merged = p.MergeSettings(types.Settings{"speed": 1.5})
	assert.Equal(t, "browser", merged["ttsServiceType"])
	assert.Equal(t, 1.5, merged["speed"])

	// Settings returns a copy.
	p.Settings()["speed"] = 99.0
	assert.Equal(t, 1.5, p.Settings()["speed"])
}
