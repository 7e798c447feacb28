package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classrelay/internal/config"
	"classrelay/pkg/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	return cfg
}

func waitForServer(t *testing.T, baseURL string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func TestApplicationEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
	waitForServer(t, baseURL)

	// Teacher connects and registers.
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	teacher, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = teacher.Close() }()

	var ack map[string]any
	require.NoError(t, teacher.ReadJSON(&ack))
	assert.Equal(t, types.MessageTypeConnection, ack["type"])
	assert.Equal(t, types.StatusConnected, ack["status"])

	require.NoError(t, teacher.WriteJSON(map[string]any{
		"type":         types.MessageTypeRegister,
		"role":         "teacher",
		"languageCode": "en-US",
		"name":         "teacher",
	}))

	var regAck, codeFrame map[string]any
	require.NoError(t, teacher.ReadJSON(&regAck))
	assert.Equal(t, types.StatusSuccess, regAck["status"])
	require.NoError(t, teacher.ReadJSON(&codeFrame))
	require.Equal(t, types.MessageTypeClassroomCode, codeFrame["type"])
	code := codeFrame["code"].(string)
	require.True(t, types.IsValidClassroomCode(code))

	// Student joins with the code at connection time.
	student, _, err := websocket.DefaultDialer.Dial(wsURL+"?code="+code, nil)
	require.NoError(t, err)
	defer func() { _ = student.Close() }()

	var studentAck map[string]any
	require.NoError(t, student.ReadJSON(&studentAck))
	assert.Equal(t, code, studentAck["classroomCode"])

	require.NoError(t, student.WriteJSON(map[string]any{
		"type":         types.MessageTypeRegister,
		"role":         "student",
		"languageCode": "en-US",
		"name":         "ana",
	}))
	var studentReg map[string]any
	require.NoError(t, student.ReadJSON(&studentReg))
	assert.Equal(t, types.StatusSuccess, studentReg["status"])

	// Teacher hears about the join.
	var joined map[string]any
	require.NoError(t, teacher.ReadJSON(&joined))
	assert.Equal(t, types.MessageTypeStudentJoined, joined["type"])

	// Same-language transcription relays without a speech backend.
	require.NoError(t, teacher.WriteJSON(map[string]any{
		"type": types.MessageTypeTranscription,
		"text": "good morning",
	}))
	var translation map[string]any
	require.NoError(t, student.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, student.ReadJSON(&translation))
	assert.Equal(t, types.MessageTypeTranslation, translation["type"])
	assert.Equal(t, "good morning", translation["text"])

	// A bogus code is refused at open with a policy-violation close.
	rejected, _, err := websocket.DefaultDialer.Dial(wsURL+"?code=ZZZ999", nil)
	require.NoError(t, err)
	defer func() { _ = rejected.Close() }()
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(3*time.Second)))
	sawClose := false
	for i := 0; i < 2; i++ {
		var frame json.RawMessage
		if err := rejected.ReadJSON(&frame); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				assert.Equal(t, types.CloseInvalidClassroom, closeErr.Code)
				sawClose = true
			}
			break
		}
	}
	assert.True(t, sawClose)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("shutdown timed out")
	}
}
