package dialogue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrak/internal/app"
)

func newRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	r, err := NewRegistry(newFakeBackend(), RegistryConfig{Session: testConfig, Capacity: 100, TTL: ttl}, zerolog.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRegistry_OwnerScoped(t *testing.T) {
	r := newRegistry(t, time.Minute)

	_, err := r.Create("")
	assert.ErrorIs(t, err, app.ErrUnauthenticated)

	s, err := r.Create("p1")
	require.NoError(t, err)

	got, err := r.Get(s.ID(), "p1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get(s.ID(), "p2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get("missing", "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(s.ID(), "p2"), ErrSessionNotFound)
}

func TestRegistry_DeleteClosesSession(t *testing.T) {
	r := newRegistry(t, time.Minute)
	s, err := r.Create("p1")
	require.NoError(t, err)
	events, _ := s.Watch()

	require.NoError(t, r.Delete(s.ID(), "p1"))

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed on delete")
	}
	_, err = r.Get(s.ID(), "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_ExpiredSessionsAreClosed(t *testing.T) {
	r := newRegistry(t, time.Second)
	s, err := r.Create("p1")
	require.NoError(t, err)
	events, _ := s.Watch()

	assert.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
