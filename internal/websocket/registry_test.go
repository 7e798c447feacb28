package websocket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classrelay/pkg/types"
)

func newTestPeer(id string) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		ID:       id,
		ctx:      ctx,
		cancel:   cancel,
		writeCh:  make(chan []byte, 1),
		alive:    true,
		settings: types.Settings{},
	}
}

func registeredPeer(id string, role types.Role, sessionID, lang string) *Peer {
	p := newTestPeer(id)
	p.Register(role, sessionID, "peer-"+id, lang)
	return p
}

func TestRegistryAddAndRemove(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("p1")

	require.NoError(t, r.Add(p))
	assert.ErrorIs(t, r.Add(p), ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("p1")
	require.True(t, ok)
	assert.Same(t, p, got)

	assert.True(t, r.Remove(p))
	assert.False(t, r.Remove(p))
	assert.Zero(t, r.Count())
}

func TestRegistrySessionIndex(t *testing.T) {
	r := NewRegistry()

	teacher := registeredPeer("t1", types.RoleTeacher, "s1", "en-US")
	s1 := registeredPeer("p1", types.RoleStudent, "s1", "es-ES")
	s2 := registeredPeer("p2", types.RoleStudent, "s1", "es-ES")
	s3 := registeredPeer("p3", types.RoleStudent, "s2", "fr-FR")

	for _, p := range []*Peer{teacher, s1, s2, s3} {
		require.NoError(t, r.Add(p))
	}

	assert.Len(t, r.SessionPeers("s1"), 3)
	assert.Len(t, r.Students("s1"), 2)

	got, ok := r.Teacher("s1")
	require.True(t, ok)
	assert.Equal(t, "t1", got.ID)

	_, ok = r.Teacher("s2")
	assert.False(t, ok)

	students, teachers := r.CountByRole("s1")
	assert.Equal(t, 2, students)
	assert.Equal(t, 1, teachers)

	r.Remove(s1)
	assert.Len(t, r.Students("s1"), 1)
}

func TestRegistryRebindMovesSessions(t *testing.T) {
	r := NewRegistry()

	p := newTestPeer("p1")
	require.NoError(t, r.Add(p))
	assert.Empty(t, r.SessionPeers("s1"))

	p.Register(types.RoleStudent, "s1", "ana", "es-ES")
	r.Rebind(p)
	assert.Len(t, r.SessionPeers("s1"), 1)

	p.Register(types.RoleStudent, "s2", "ana", "es-ES")
	r.Rebind(p)
	assert.Empty(t, r.SessionPeers("s1"))
	assert.Len(t, r.SessionPeers("s2"), 1)
}

func TestStudentsByLanguage(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Add(registeredPeer("p1", types.RoleStudent, "s1", "es-ES")))
	require.NoError(t, r.Add(registeredPeer("p2", types.RoleStudent, "s1", "es-ES")))
	require.NoError(t, r.Add(registeredPeer("p3", types.RoleStudent, "s1", "fr-FR")))
	require.NoError(t, r.Add(registeredPeer("t1", types.RoleTeacher, "s1", "en-US")))

	// Connected but unregistered peers never receive fan-out.
	pending := newTestPeer("p4")
	pending.BindSession("s1")
	require.NoError(t, r.Add(pending))

	groups := r.StudentsByLanguage("s1")
	require.Len(t, groups, 2)
	assert.Len(t, groups["es-ES"], 2)
	assert.Len(t, groups["fr-FR"], 1)
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Add(registeredPeer("t1", types.RoleTeacher, "s1", "en-US")))
	require.NoError(t, r.Add(registeredPeer("p1", types.RoleStudent, "s1", "es-ES")))
	require.NoError(t, r.Add(registeredPeer("p2", types.RoleStudent, "s2", "fr-FR")))

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.ActiveSessions)
	assert.Equal(t, 2, snap.Students)
	assert.Equal(t, 1, snap.Teachers)
	assert.ElementsMatch(t, []string{"es-ES", "fr-FR"}, snap.LanguagesInUse)
}
