package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en-US", req.SourceLanguage)
		assert.Equal(t, "es-ES", req.TargetLanguage)

		_ = json.NewEncoder(w).Encode(translateResponse{
			TranslatedText: "buenos dias",
			ServiceType:    "openai",
		})
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, "secret", time.Second)
	result, err := a.Translate(context.Background(), "en-US", "es-ES", "good morning")
	require.NoError(t, err)
	assert.Equal(t, "buenos dias", result.TranslatedText)
	assert.Equal(t, "openai", result.Audio.ServiceType)
	assert.Greater(t, result.TranslationLatency, time.Duration(0))
}

func TestTranslateSameLanguageShortCircuits(t *testing.T) {
	a := NewAdapter("http://never-called.invalid", "", time.Second)
	result, err := a.Translate(context.Background(), "en-US", "en-US", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.TranslatedText)
}

func TestTranslateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, "", time.Second)
	_, err := a.Translate(context.Background(), "en-US", "es-ES", "hello")
	assert.Error(t, err)
}

func TestTranslateNoEndpoint(t *testing.T) {
	a := NewAdapter("", "", time.Second)
	_, err := a.Translate(context.Background(), "en-US", "es-ES", "hello")
	assert.Error(t, err)
}

func TestSynthesizeBrowserHint(t *testing.T) {
	a := NewAdapter("http://never-called.invalid", "", time.Second)
	audio, err := a.Synthesize(context.Background(), "hola", "es-ES", "browser")
	require.NoError(t, err)
	assert.True(t, audio.UseClientSpeech)
	assert.Equal(t, "browser", audio.ServiceType)
	assert.Equal(t, "es-ES", audio.SpeechParams["lang"])
}

func TestSynthesizeFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, "", time.Second)
	audio, err := a.Synthesize(context.Background(), "hola", "es-ES", "openai")
	require.NoError(t, err)
	assert.True(t, audio.UseClientSpeech)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	fail.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(translateResponse{TranslatedText: "hola"})
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, "", time.Second)
	a.breakerReset = 50 * time.Millisecond

	for i := 0; i < breakerThreshold; i++ {
		_, err := a.Translate(context.Background(), "en-US", "es-ES", "hello")
		require.Error(t, err)
	}

	// Circuit is open: no further backend calls.
	before := calls.Load()
	_, err := a.Translate(context.Background(), "en-US", "es-ES", "hello")
	require.Error(t, err)
	assert.Equal(t, before, calls.Load())

	// After the cooldown a probe goes through and resets the breaker.
	fail.Store(false)
	time.Sleep(60 * time.Millisecond)
	result, err := a.Translate(context.Background(), "en-US", "es-ES", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hola", result.TranslatedText)
}
