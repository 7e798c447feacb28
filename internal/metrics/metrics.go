// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive is the number of currently open WebSocket peers.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classrelay_connections_active",
		Help: "Number of open WebSocket connections.",
	})

	// TranscriptionsTotal counts teacher transcription frames accepted.
	TranscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classrelay_transcriptions_total",
		Help: "Teacher transcriptions accepted for fan-out.",
	})

	// TranslationsTotal counts completed fan-out legs by outcome.
	TranslationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classrelay_translations_total",
		Help: "Per-language fan-out legs by outcome.",
	}, []string{"outcome"})

	// SessionsEnded counts ended sessions by quality classification.
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classrelay_sessions_ended_total",
		Help: "Ended sessions by quality classification.",
	}, []string{"quality"})

	// HealthTerminations counts peers terminated by the health monitor.
	HealthTerminations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classrelay_health_terminations_total",
		Help: "Peers terminated for failing heartbeat checks.",
	})
)

// Leg outcomes for TranslationsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)
