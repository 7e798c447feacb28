// Package fanout turns one teacher utterance into per-language translation
// frames for every connected student.
package fanout

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"classrelay/internal/logging"
	"classrelay/internal/metrics"
	ws "classrelay/internal/websocket"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

const maxConcurrentLegs = 8

// TranslationStore is the slice of the repository the fan-out engine needs.
type TranslationStore interface {
	AppendTranslation(ctx context.Context, t *types.Translation) error
}

// Service fans a transcription out to each distinct target language. Legs
// run concurrently; one failed language degrades to the original text
// instead of failing the whole broadcast.
type Service struct {
	speech     interfaces.SpeechPipeline
	registry   *ws.Registry
	writer     *ws.ResponseWriter
	repository TranslationStore
	legTimeout time.Duration
	log        zerolog.Logger
}

// NewService wires the fan-out engine.
func NewService(speech interfaces.SpeechPipeline, registry *ws.Registry, writer *ws.ResponseWriter, repository TranslationStore, legTimeout time.Duration) *Service {
	return &Service{
		speech:     speech,
		registry:   registry,
		writer:     writer,
		repository: repository,
		legTimeout: legTimeout,
		log:        logging.WithComponent("fanout"),
	}
}

// Broadcast translates text into every language in use by the session's
// students and delivers one frame per student. It blocks until all legs
// finish, so calls from a single read loop keep per-student ordering.
// Returns the number of distinct target languages and the number of
// translation frames delivered.
func (s *Service) Broadcast(ctx context.Context, sessionID, sourceLanguage, text string) (languages, frames int) {
	groups := s.registry.StudentsByLanguage(sessionID)
	if len(groups) == 0 {
		return 0, 0
	}

	var (
		g, gctx   = errgroup.WithContext(ctx)
		delivered = make(chan int, len(groups))
	)
	g.SetLimit(maxConcurrentLegs)

	for lang, students := range groups {
		lang, students := lang, students
		g.Go(func() error {
			delivered <- s.runLeg(gctx, sessionID, sourceLanguage, lang, text, students)
			return nil
		})
	}
	_ = g.Wait()
	close(delivered)

	total := 0
	for n := range delivered {
		total += n
	}
	return len(groups), total
}

// runLeg translates and synthesizes for one target language, then delivers
// to every student in that group. Failures degrade rather than propagate.
func (s *Service) runLeg(ctx context.Context, sessionID, sourceLanguage, targetLanguage, text string, students []*ws.Peer) int {
	legCtx, cancel := context.WithTimeout(ctx, s.legTimeout)
	defer cancel()

	result, err := s.speech.Translate(legCtx, sourceLanguage, targetLanguage, text)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("target_language", targetLanguage).
			Msg("translation failed, delivering original text")
		metrics.TranslationsTotal.WithLabelValues(metrics.OutcomeDegraded).Inc()
		frame := s.buildFrame(text, text, sourceLanguage, targetLanguage, interfaces.AudioArtifact{}, 0, 0)
		s.writer.Broadcast(students, frame)
		return len(students)
	}

	metrics.TranslationsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	frame := s.buildFrame(result.TranslatedText, text, sourceLanguage, targetLanguage,
		result.Audio, result.TranslationLatency, result.TTSLatency)
	s.writer.Broadcast(students, frame)

	s.persist(sessionID, sourceLanguage, targetLanguage, text, result.TranslatedText, result.TranslationLatency)
	return len(students)
}

func (s *Service) buildFrame(text, original, sourceLanguage, targetLanguage string, audio interfaces.AudioArtifact, translationLatency, ttsLatency time.Duration) types.TranslationFrame {
	frame := types.TranslationFrame{
		Type:           types.MessageTypeTranslation,
		Text:           text,
		OriginalText:   original,
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
		Latency: types.Latency{
			Total: (translationLatency + ttsLatency).Milliseconds(),
			Components: types.LatencyComponents{
				Translation: translationLatency.Milliseconds(),
				TTS:         ttsLatency.Milliseconds(),
			},
		},
	}
	// Text-only frames carry no audio fields at all.
	if !audio.Empty() {
		frame.TTSServiceType = audio.ServiceType
		frame.UseClientSpeech = audio.UseClientSpeech
		frame.SpeechParams = audio.SpeechParams
		if len(audio.Data) > 0 {
			frame.AudioData = base64.StdEncoding.EncodeToString(audio.Data)
		}
	}
	return frame
}

// persist records the leg for later review. Storage failures never affect
// delivery.
func (s *Service) persist(sessionID, sourceLanguage, targetLanguage, original, translated string, latency time.Duration) {
	if s.repository == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.repository.AppendTranslation(ctx, &types.Translation{
		SessionID:      sessionID,
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
		OriginalText:   original,
		TranslatedText: translated,
		LatencyMS:      latency.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist translation")
	}
}
