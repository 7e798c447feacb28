package websocket

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classrelay/internal/logging"
	"classrelay/internal/metrics"
	"classrelay/pkg/types"
)

// HealthMonitor sweeps all peers on a fixed interval. A peer that produced
// no inbound traffic between two sweeps is terminated; its read loop then
// runs the normal disconnect path.
type HealthMonitor struct {
	registry *Registry
	interval time.Duration
	stopCh   chan struct{}
	stopped  sync.Once
	log      zerolog.Logger
}

// NewHealthMonitor creates a monitor over the given registry.
func NewHealthMonitor(registry *Registry, interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      logging.WithComponent("health"),
	}
}

// Start launches the sweep loop.
func (h *HealthMonitor) Start() {
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sweep()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (h *HealthMonitor) Stop() {
	h.stopped.Do(func() { close(h.stopCh) })
}

func (h *HealthMonitor) sweep() {
	for _, p := range h.registry.All() {
		if !p.Alive() {
			h.log.Warn().
				Str("peer_id", p.ID).
				Str("session_id", p.SessionID()).
				Str("role", string(p.Role())).
				Msg("terminating unresponsive peer")
			metrics.HealthTerminations.Inc()
			_ = p.Close()
			continue
		}

		// Mark stale and probe on both levels. Either a protocol pong or
		// any application frame restores liveness before the next sweep.
		p.MarkStale()
		if err := p.Ping(); err != nil {
			_ = p.Close()
			continue
		}
		_ = p.Send(types.PingFrame{
			Type:      types.MessageTypePing,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
