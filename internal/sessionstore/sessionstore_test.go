package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsfs-project/tsfs/pkg/store"
	"github.com/tsfs-project/tsfs/pkg/store/memory"
)

func newTestStore(t *testing.T) (*Store, store.Store) {
	t.Helper()
	db := memory.NewStore()
	require.NoError(t, db.CreateUser(context.Background(), &store.User{Username: "alice", RootKeyringID: "kr-1"}))
	require.NoError(t, db.CreateUser(context.Background(), &store.User{Username: "bob", RootKeyringID: "kr-2"}))
	return New(db), db
}

// fakeSessionKey returns a distinct 32-byte stand-in for an OPAQUE session
// key, keyed by seed so callers can issue multiple distinct sessions.
func fakeSessionKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	return key
}

func TestIssueAndAuthenticate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "alice", fakeSessionKey(1))
	require.NoError(t, err)
	assert.Len(t, token, 44) // base64 of 32 bytes, standard padding

	username, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestAuthenticateUnknownToken(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Authenticate(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateExpiredTokenIsDeleted(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, &store.Session{
		Token:        "stale",
		Username:     "alice",
		ExpirationMS: time.Now().Add(-time.Minute).UnixMilli(),
	}))

	_, err := s.Authenticate(ctx, "stale")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = db.GetSession(ctx, "stale")
	assert.True(t, store.IsNotFound(err))
}

func TestRevoke(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "alice", fakeSessionKey(1))
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, token))
	_, err = s.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Revoking a token that's already gone is not an error.
	assert.NoError(t, s.Revoke(ctx, token))
}

func TestRevokeAllExcept(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	keep, err := s.Issue(ctx, "alice", fakeSessionKey(1))
	require.NoError(t, err)
	other1, err := s.Issue(ctx, "alice", fakeSessionKey(2))
	require.NoError(t, err)
	other2, err := s.Issue(ctx, "alice", fakeSessionKey(3))
	require.NoError(t, err)
	bobToken, err := s.Issue(ctx, "bob", fakeSessionKey(4))
	require.NoError(t, err)

	n, err := s.RevokeAllExcept(ctx, "alice", keep)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = s.Authenticate(ctx, keep)
	assert.NoError(t, err)
	_, err = s.Authenticate(ctx, other1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Authenticate(ctx, other2)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// bob's session is untouched by alice's revoke_all_except.
	_, err = s.Authenticate(ctx, bobToken)
	assert.NoError(t, err)
}

func TestListForReturnsShortTokenOnly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "alice", fakeSessionKey(1))
	require.NoError(t, err)

	summaries, err := s.ListFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, token[:TokenShortLen], summaries[0].TokenShort)
	assert.NotEqual(t, token, summaries[0].TokenShort)
}

func TestListForExcludesOtherUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Issue(ctx, "alice", fakeSessionKey(1))
	require.NoError(t, err)
	_, err = s.Issue(ctx, "bob", fakeSessionKey(2))
	require.NoError(t, err)

	summaries, err := s.ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestRunSweepsExpiredSessions(t *testing.T) {
	s, db := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	s.sweepInterval = 5 * time.Millisecond

	require.NoError(t, db.CreateSession(ctx, &store.Session{
		Token:        "stale",
		Username:     "alice",
		ExpirationMS: time.Now().Add(-time.Minute).UnixMilli(),
	}))

	go s.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		_, err := db.GetSession(ctx, "stale")
		return store.IsNotFound(err)
	}, time.Second, 5*time.Millisecond)
}
