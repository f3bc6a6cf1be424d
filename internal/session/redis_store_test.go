package session

import (
	"context"
	"testing"
	"time"

	"collab/api/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rs, err := NewRedisStore(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err, "failed to create redis store")
	t.Cleanup(func() { _ = rs.Close() })
	return rs, s
}

func TestNewRedisStore(t *testing.T) {
	rs, _ := setupTestRedis(t)
	assert.NoError(t, rs.Ping(context.Background()))
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()
	_, err := NewRedisStore(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.SaveRefreshSession(ctx, "hash-1", "user-123", time.Now().Add(24*time.Hour)))

	userID, err := rs.LookupRefreshSession(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)

	ttl := s.TTL("collab:refresh:hash-1")
	assert.Greater(t, ttl, 23*time.Hour)
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

func TestLookupExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.SaveRefreshSession(ctx, "expiring", "user-456", time.Now().Add(time.Minute)))
	s.FastForward(2 * time.Minute)

	_, err := rs.LookupRefreshSession(ctx, "expiring")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAlreadyExpiredSessionStillGetsTTL(t *testing.T) {
	rs, s := setupTestRedis(t)
	require.NoError(t, rs.SaveRefreshSession(context.Background(), "stale", "user-1", time.Now().Add(-time.Hour)))
	assert.Positive(t, s.TTL("collab:refresh:stale"))
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.SaveRefreshSession(ctx, "revoke-me", "user-789", time.Now().Add(time.Hour)))
	require.NoError(t, rs.RevokeRefreshSession(ctx, "revoke-me"))
	_, err := rs.LookupRefreshSession(ctx, "revoke-me")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, rs.RevokeRefreshSession(ctx, "never-existed"), "revoking a missing session")
}

func TestSessionIsolation(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for hash, user := range map[string]string{"token-1": "user-1", "token-2": "user-2"} {
		require.NoError(t, rs.SaveRefreshSession(ctx, hash, user, expiresAt), hash)
	}
	require.NoError(t, rs.RevokeRefreshSession(ctx, "token-1"))

	_, err := rs.LookupRefreshSession(ctx, "token-1")
	assert.Error(t, err, "token-1 should be gone")
	userID, err := rs.LookupRefreshSession(ctx, "token-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestCorruptSessionPayload(t *testing.T) {
	rs, s := setupTestRedis(t)
	require.NoError(t, s.Set("collab:refresh:broken", "{not-json"))
	_, err := rs.LookupRefreshSession(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestAccessTokenRevocation(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := rs.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "fresh jti")

	require.NoError(t, rs.RevokeAccessToken(ctx, "jti-1", time.Now().Add(10*time.Minute)))
	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	s.FastForward(11 * time.Minute)
	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "revocation lapses with the token")
}

func TestWithExistingClient(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rs := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = rs.Close() })

	require.NoError(t, rs.SaveRefreshSession(context.Background(), "h", "u", time.Now().Add(time.Hour)))
	assert.True(t, s.Exists("collab:refresh:h"), "key under collab:refresh: prefix")
}
