// Package session keeps refresh sessions and access-token revocations in
// Redis so they expire on their own.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collab/api/internal/store"

	"github.com/redis/go-redis/v9"
)

type refreshEntry struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type RedisStore struct {
	client        *redis.Client
	refreshPrefix string
	revokedPrefix string
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:        client,
		refreshPrefix: "collab:refresh:",
		revokedPrefix: "collab:revoked:",
	}
}

// ttlUntil never returns a non-positive TTL; Redis treats 0 as "no expiry".
func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	payload, err := json.Marshal(refreshEntry{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal refresh session: %w", err)
	}
	if err := s.client.Set(ctx, s.refreshPrefix+tokenHash, payload, ttlUntil(expiresAt)).Err(); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the owning user id, or store.ErrNotFound once
// the session has expired or been revoked.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	raw, err := s.client.Get(ctx, s.refreshPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}

	var entry refreshEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", fmt.Errorf("decode refresh session: %w", err)
	}
	if entry.UserID == "" {
		return "", store.ErrNotFound
	}
	return entry.UserID, nil
}

func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.refreshPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAccessToken remembers jti until the token would have expired anyway.
func (s *RedisStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if err := s.client.Set(ctx, s.revokedPrefix+jti, "1", ttlUntil(exp)).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
