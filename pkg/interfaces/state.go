// Package interfaces holds the contracts between the relay core and its
// external collaborators: the durable store, the speech pipeline, and the
// read-only live-state projection consumed by diagnostics.
package interfaces

// ActiveSnapshot is a consistent point-in-time projection of the live peer
// graph. "Active sessions" here means sessions with at least one live peer;
// durable active sessions are a separate count owned by the repository.
type ActiveSnapshot struct {
	ActiveSessions int      `json:"active_sessions"`
	Students       int      `json:"students"`
	Teachers       int      `json:"teachers"`
	LanguagesInUse []string `json:"languages_in_use"`
}

// ActiveStateProvider exposes live state read-only. The diagnostics
// aggregator is its only consumer; nothing outside the core may mutate the
// peer graph.
type ActiveStateProvider interface {
	Snapshot() ActiveSnapshot
}
