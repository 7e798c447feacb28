package websocket

import (
	"sync"

	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// Registry tracks live peers with secondary indexes by session. Lookups hold
// the read lock only long enough to copy slices; callers never iterate under
// the lock.
type Registry struct {
	mu        sync.RWMutex
	peers     map[string]*Peer            // peer ID -> peer
	bySession map[string]map[string]*Peer // session ID -> peer ID -> peer
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{
		peers:     make(map[string]*Peer),
		bySession: make(map[string]map[string]*Peer),
	}
}

// Add registers a peer. The session index is updated lazily on Rebind once
// the peer learns its session.
func (r *Registry) Add(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID]; exists {
		return ErrAlreadyRegistered
	}
	r.peers[p.ID] = p
	if sid := p.SessionID(); sid != "" {
		r.indexLocked(sid, p)
	}
	return nil
}

// Rebind moves a peer into a session's index after registration.
func (r *Registry) Rebind(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID]; !exists {
		return
	}
	for sid, peers := range r.bySession {
		if _, ok := peers[p.ID]; ok && sid != p.SessionID() {
			delete(peers, p.ID)
			if len(peers) == 0 {
				delete(r.bySession, sid)
			}
		}
	}
	if sid := p.SessionID(); sid != "" {
		r.indexLocked(sid, p)
	}
}

func (r *Registry) indexLocked(sessionID string, p *Peer) {
	peers, ok := r.bySession[sessionID]
	if !ok {
		peers = make(map[string]*Peer)
		r.bySession[sessionID] = peers
	}
	peers[p.ID] = p
}

// Remove drops the peer from all indexes. Returns false if it was not held.
func (r *Registry) Remove(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID]; !exists {
		return false
	}
	delete(r.peers, p.ID)
	for sid, peers := range r.bySession {
		delete(peers, p.ID)
		if len(peers) == 0 {
			delete(r.bySession, sid)
		}
	}
	return true
}

// Get returns a peer by ID.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Count returns the number of live peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// SessionPeers returns all peers bound to a session.
func (r *Registry) SessionPeers(sessionID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.bySession[sessionID]))
	for _, p := range r.bySession[sessionID] {
		peers = append(peers, p)
	}
	return peers
}

// Teacher returns the registered teacher peer for a session, if connected.
func (r *Registry) Teacher(sessionID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.bySession[sessionID] {
		if p.Role() == types.RoleTeacher {
			return p, true
		}
	}
	return nil, false
}

// Students returns all registered student peers for a session.
func (r *Registry) Students(sessionID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var students []*Peer
	for _, p := range r.bySession[sessionID] {
		if p.Role() == types.RoleStudent && p.Registered() {
			students = append(students, p)
		}
	}
	return students
}

// StudentsByLanguage groups a session's registered students by their target
// language. Students with no language yet are skipped; they cannot receive a
// translation leg.
func (r *Registry) StudentsByLanguage(sessionID string) map[string][]*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make(map[string][]*Peer)
	for _, p := range r.bySession[sessionID] {
		if p.Role() != types.RoleStudent || !p.Registered() {
			continue
		}
		lang := p.LanguageCode()
		if lang == "" {
			continue
		}
		groups[lang] = append(groups[lang], p)
	}
	return groups
}

// CountByRole returns (students, teachers) currently connected for a session.
func (r *Registry) CountByRole(sessionID string) (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var students, teachers int
	for _, p := range r.bySession[sessionID] {
		switch p.Role() {
		case types.RoleStudent:
			students++
		case types.RoleTeacher:
			teachers++
		}
	}
	return students, teachers
}

// All returns a snapshot of every live peer.
func (r *Registry) All() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// Snapshot implements interfaces.ActiveStateProvider for diagnostics.
func (r *Registry) Snapshot() interfaces.ActiveSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := interfaces.ActiveSnapshot{
		ActiveSessions: len(r.bySession),
	}
	langs := make(map[string]bool)
	for _, peers := range r.bySession {
		for _, p := range peers {
			switch p.Role() {
			case types.RoleStudent:
				snap.Students++
				if lang := p.LanguageCode(); lang != "" {
					langs[lang] = true
				}
			case types.RoleTeacher:
				snap.Teachers++
			}
		}
	}
	for lang := range langs {
		snap.LanguagesInUse = append(snap.LanguagesInUse, lang)
	}
	return snap
}
