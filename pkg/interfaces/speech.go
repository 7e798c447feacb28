package interfaces

import (
	"context"
	"time"
)

// AudioArtifact is the audio half of a pipeline result. Exactly one of three
// shapes applies: Data non-empty (server-synthesized audio), UseClientSpeech
// true (the client synthesizes locally using SpeechParams), or neither
// (text-only delivery).
type AudioArtifact struct {
	Data            []byte
	ServiceType     string
	UseClientSpeech bool
	SpeechParams    map[string]any
}

// Empty reports whether the artifact carries no audio instruction at all.
func (a AudioArtifact) Empty() bool {
	return len(a.Data) == 0 && !a.UseClientSpeech
}

// TranslationResult is one per-language pipeline response.
type TranslationResult struct {
	TranslatedText     string
	Audio              AudioArtifact
	TranslationLatency time.Duration
	TTSLatency         time.Duration
}

// SpeechPipeline is the contract on the external translation/TTS stack.
// The core sees a single call per target language returning success, a
// client-synthesis marker, or failure; retry, fallback and circuit-breaking
// all live behind the interface in the adapter. Both calls honor ctx
// deadlines; a deadline exceed is reported as an error and the caller
// degrades that leg.
type SpeechPipeline interface {
	// Translate converts text from sourceLang to targetLang and, where the
	// backend supports it, synthesizes audio for the result.
	Translate(ctx context.Context, sourceLang, targetLang, text string) (*TranslationResult, error)

	// Synthesize produces audio for already-translated text. serviceHint is
	// the peer's preferred TTS backend and may be empty.
	Synthesize(ctx context.Context, text, languageCode, serviceHint string) (*AudioArtifact, error)
}
