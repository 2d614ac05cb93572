// Package session issues and resolves opaque bearer tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrUnknownToken = errors.New("unknown or expired token")

type Store interface {
	// Issue creates a token bound to userID that expires after the store TTL.
	Issue(ctx context.Context, userID string) (token string, expiresAt time.Time, err error)
	Resolve(ctx context.Context, token string) (userID string, err error)
	Revoke(ctx context.Context, token string) error
}

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) Store {
	return &redisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "order-service:session",
		ttl:    ttl,
	}
}

func (r *redisStore) key(token string) string {
	return fmt.Sprintf("%s:%s", r.prefix, token)
}

func (r *redisStore) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	token := uuid.NewString()
	if err := r.client.Set(ctx, r.key(token), userID, r.ttl).Err(); err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(r.ttl), nil
}

func (r *redisStore) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := r.client.Get(ctx, r.key(token)).Result()
	if err == redis.Nil {
		return "", ErrUnknownToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (r *redisStore) Revoke(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

type entry struct {
	userID    string
	expiresAt time.Time
}

// MemoryStore keeps tokens in process; used when no Redis is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	tokens map[string]entry
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, tokens: make(map[string]entry), now: time.Now}
}

func (m *MemoryStore) Issue(_ context.Context, userID string) (string, time.Time, error) {
	token := uuid.NewString()
	exp := m.now().Add(m.ttl)
	m.mu.Lock()
	m.tokens[token] = entry{userID: userID, expiresAt: exp}
	m.mu.Unlock()
	return token, exp, nil
}

func (m *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	e, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return "", ErrUnknownToken
	}
	return e.userID, nil
}

func (m *MemoryStore) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.tokens, token)
	m.mu.Unlock()
	return nil
}
