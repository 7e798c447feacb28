package router

import (
	"sync"
	"time"
)

// RateLimiter caps frames per peer with a fixed one-minute window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit frames per minute per peer.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the peer may send another frame in this window.
func (rl *RateLimiter) Allow(peerID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.clients[peerID]
	if !exists || now.Sub(w.windowStart) >= time.Minute {
		rl.clients[peerID] = &clientWindow{count: 1, windowStart: now}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup drops windows idle for 5 minutes. Called periodically to keep the
// map from growing with departed peers.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for peerID, w := range rl.clients {
		if now.Sub(w.windowStart) > 5*time.Minute {
			delete(rl.clients, peerID)
		}
	}
}

// Forget drops a peer's window immediately on disconnect.
func (rl *RateLimiter) Forget(peerID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, peerID)
}
