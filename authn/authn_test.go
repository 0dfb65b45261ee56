package authn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/docuhub/gsadapt/session"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *session.Store) {
	t.Helper()
	store := session.NewStore(time.Hour, time.Hour)
	provider := &Provider{
		oauth2Config: &oauth2.Config{
			ClientID:    "test-client",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://idp.example.com/authorize"},
			RedirectURL: "https://docs.example.com/authn/callback",
		},
	}
	return NewOrchestrator(store, provider), store
}

func TestNewSessionStartsInNoneState(t *testing.T) {
	o, store := testOrchestrator(t)
	s, err := store.Create()
	require.NoError(t, err)

	info := o.CurrentState(s)
	assert.Equal(t, None, info.State)
}

func TestInitiateTransitionsToPending(t *testing.T) {
	o, store := testOrchestrator(t)
	s, err := store.Create()
	require.NoError(t, err)

	dest := o.Initiate(s, "10.0.0.5", "/doc/report.txt")
	assert.Contains(t, dest, "https://idp.example.com/authorize")

	info := o.CurrentState(s)
	assert.Equal(t, Pending, info.State)
	assert.Equal(t, "/doc/report.txt", info.OriginalURI)
}

func TestCompleteCallbackRequiresPendingState(t *testing.T) {
	o, store := testOrchestrator(t)
	s, err := store.Create()
	require.NoError(t, err)

	_, err = o.CompleteCallback(context.Background(), s, "some-code")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestAuthenticatedExpiresBackToNone(t *testing.T) {
	o, store := testOrchestrator(t)
	s, err := store.Create()
	require.NoError(t, err)

	s.Transact(func(attrs map[string]any) {
		attrs[AttrKey] = Info{
			State:     Authenticated,
			Principal: "alice",
			ExpiresAt: time.Now().Add(-time.Minute),
		}
	})

	info := o.CurrentState(s)
	assert.Equal(t, None, info.State)
}

func TestAuthenticatedStillValidStaysAuthenticated(t *testing.T) {
	o, store := testOrchestrator(t)
	s, err := store.Create()
	require.NoError(t, err)

	s.Transact(func(attrs map[string]any) {
		attrs[AttrKey] = Info{
			State:     Authenticated,
			Principal: "alice",
			ExpiresAt: time.Now().Add(time.Hour),
		}
	})

	info := o.CurrentState(s)
	assert.Equal(t, Authenticated, info.State)
	assert.Equal(t, "alice", info.Principal)
}
