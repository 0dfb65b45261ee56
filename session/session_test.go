package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndLookup(t *testing.T) {
	st := NewStore(time.Hour, time.Hour)

	s, err := st.Create()
	require.NoError(t, err)
	assert.Len(t, s.ID(), 32)

	got, ok := st.Lookup(s.ID())
	require.True(t, ok)
	assert.Equal(t, s.ID(), got.ID())
}

func TestLookupMissingFails(t *testing.T) {
	st := NewStore(time.Hour, time.Hour)
	_, ok := st.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestAttributesRoundTrip(t *testing.T) {
	st := NewStore(time.Hour, time.Hour)
	s, err := st.Create()
	require.NoError(t, err)

	s.Set("user", "alice")
	v, ok := s.Get("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	s.Delete("user")
	_, ok = s.Get("user")
	assert.False(t, ok)
}

func TestLazyCleanupEvictsExpiredSessions(t *testing.T) {
	st := NewStore(10*time.Millisecond, 10*time.Millisecond)
	s, err := st.Create()
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// Creating a second session should trigger the cleanup pass and evict
	// the first, now-expired, session.
	_, err = st.Create()
	require.NoError(t, err)

	_, ok := st.Lookup(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, st.Len())
}

func TestCleanupRespectsMinimumPeriod(t *testing.T) {
	st := NewStore(10*time.Millisecond, time.Hour)
	s, err := st.Create()
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// The cleanup period hasn't elapsed yet, so the expired session is
	// still reachable even though it's logically stale.
	_, err = st.Create()
	require.NoError(t, err)

	_, ok := st.Lookup(s.ID())
	assert.True(t, ok)
}
