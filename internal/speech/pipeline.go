// Package speech adapts the external translation/TTS HTTP service to the
// SpeechPipeline interface and shields the relay from its failures.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	"classrelay/pkg/interfaces"
)

const breakerThreshold = 5

// Adapter calls the speech backend over HTTP. After breakerThreshold
// consecutive failures the circuit opens and every leg short-circuits to the
// browser-speech marker until a cooldown passes, so a dead backend degrades
// the classroom instead of stalling it.
type Adapter struct {
	endpoint string
	apiKey   string
	client   *http.Client
	timeout  time.Duration

	mu           sync.Mutex
	failures     int
	openUntil    time.Time
	breakerReset time.Duration

	log zerolog.Logger
}

// NewAdapter creates the HTTP adapter. An empty endpoint configures a
// permanently open circuit: everything falls back to client-side speech and
// identity translation is refused.
func NewAdapter(endpoint, apiKey string, timeout time.Duration) *Adapter {
	return &Adapter{
		endpoint:     endpoint,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: timeout},
		timeout:      timeout,
		breakerReset: 30 * time.Second,
		log:          logging.WithComponent("speech"),
	}
}

type translateRequest struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	Text           string `json:"text"`
}

type translateResponse struct {
	TranslatedText  string         `json:"translatedText"`
	AudioData       []byte         `json:"audioData,omitempty"`
	ServiceType     string         `json:"serviceType,omitempty"`
	UseClientSpeech bool           `json:"useClientSpeech,omitempty"`
	SpeechParams    map[string]any `json:"speechParams,omitempty"`
}

type synthesizeRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
	ServiceType  string `json:"serviceType,omitempty"`
}

// Translate implements interfaces.SpeechPipeline.
func (a *Adapter) Translate(ctx context.Context, sourceLang, targetLang, text string) (*interfaces.TranslationResult, error) {
	if sourceLang == targetLang {
		// Same-language students just get the original text back.
		return &interfaces.TranslationResult{TranslatedText: text}, nil
	}
	if !a.allow() {
		return nil, fmt.Errorf("speech backend unavailable")
	}

	start := time.Now()
	var resp translateResponse
	err := a.post(ctx, "/translate", translateRequest{
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		Text:           text,
	}, &resp)
	if err != nil {
		a.recordFailure()
		return nil, err
	}
	a.recordSuccess()

	return &interfaces.TranslationResult{
		TranslatedText: resp.TranslatedText,
		Audio: interfaces.AudioArtifact{
			Data:            resp.AudioData,
			ServiceType:     resp.ServiceType,
			UseClientSpeech: resp.UseClientSpeech,
			SpeechParams:    resp.SpeechParams,
		},
		TranslationLatency: time.Since(start),
	}, nil
}

// Synthesize implements interfaces.SpeechPipeline. When the circuit is open
// it returns the browser-speech marker instead of an error, since clients
// can always speak text locally.
func (a *Adapter) Synthesize(ctx context.Context, text, languageCode, serviceHint string) (*interfaces.AudioArtifact, error) {
	if serviceHint == "browser" || !a.allow() {
		return &interfaces.AudioArtifact{
			UseClientSpeech: true,
			ServiceType:     "browser",
			SpeechParams:    map[string]any{"lang": languageCode},
		}, nil
	}

	var resp translateResponse
	err := a.post(ctx, "/synthesize", synthesizeRequest{
		Text:         text,
		LanguageCode: languageCode,
		ServiceType:  serviceHint,
	}, &resp)
	if err != nil {
		a.recordFailure()
		// Audio is optional everywhere it is used; degrade to the marker.
		a.log.Warn().Err(err).Str("language", languageCode).Msg("synthesis failed, falling back to client speech")
		return &interfaces.AudioArtifact{
			UseClientSpeech: true,
			ServiceType:     "browser",
			SpeechParams:    map[string]any{"lang": languageCode},
		}, nil
	}
	a.recordSuccess()

	return &interfaces.AudioArtifact{
		Data:            resp.AudioData,
		ServiceType:     resp.ServiceType,
		UseClientSpeech: resp.UseClientSpeech,
		SpeechParams:    resp.SpeechParams,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech backend returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// allow reports whether the circuit permits a call right now.
func (a *Adapter) allow() bool {
	if a.endpoint == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openUntil.IsZero() {
		return true
	}
	if time.Now().After(a.openUntil) {
		// Half-open: let one call probe the backend.
		a.openUntil = time.Time{}
		a.failures = breakerThreshold - 1
		return true
	}
	return false
}

func (a *Adapter) recordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
	if a.failures >= breakerThreshold && a.openUntil.IsZero() {
		a.openUntil = time.Now().Add(a.breakerReset)
		a.log.Error().
			Int("failures", a.failures).
			Dur("cooldown", a.breakerReset).
			Msg("speech circuit opened")
	}
}

func (a *Adapter) recordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = 0
	a.openUntil = time.Time{}
}
