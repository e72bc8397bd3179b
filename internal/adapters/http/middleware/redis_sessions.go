package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "civic:session:"

// RedisSessionStore keeps sessions in Redis so several server instances can share them.
// Expiry is delegated to the key TTL.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisSessionStore wraps a connected client.
// PRE: rdb is non-nil
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// Create stores the session as JSON under a fresh token.
// POST: key expires after the store TTL
func (rs *RedisSessionStore) Create(ctx context.Context, session Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	session.CreatedAt = rs.now()
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := rs.rdb.Set(ctx, redisSessionPrefix+token, data, rs.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Get loads a session; a missing key maps to ErrSessionNotFound.
func (rs *RedisSessionStore) Get(ctx context.Context, token string) (Session, error) {
	data, err := rs.rdb.Get(ctx, redisSessionPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// Delete removes the session key.
func (rs *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := rs.rdb.Del(ctx, redisSessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
