// Package idempotency replays the stored response of a request whose
// Idempotency-Key header has been seen before.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/clockz"
)

// Stored is a recorded HTTP response.
type Stored struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	// RequestHash fingerprints the request body the response was produced for.
	RequestHash string `json:"request_hash,omitempty"`
}

// Store keeps responses by idempotency key. Save keeps the first response
// written for a key and reports whether this call stored it.
type Store interface {
	Get(ctx context.Context, key string) (*Stored, bool, error)
	Save(ctx context.Context, key string, s Stored, ttl time.Duration) (bool, error)
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps responses in redis under "idempotency:<key>".
type RedisStore struct {
	client redisClient
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Stored, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: get %s: %w", key, err)
	}
	var stored Stored
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode %s: %w", key, err)
	}
	return &stored, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, stored Stored, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(stored)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, redisKey(key), raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: save %s: %w", key, err)
	}
	return ok, nil
}

type memoryEntry struct {
	stored    Stored
	expiresAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clockz.Clock
}

// NewMemoryStore creates an empty store. A nil clock uses the real clock.
func NewMemoryStore(clock clockz.Clock) *MemoryStore {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: clock}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Stored, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	stored := e.stored
	stored.Body = append([]byte(nil), e.stored.Body...)
	return &stored, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, stored Stored, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if e, ok := s.entries[key]; ok && (e.expiresAt.IsZero() || now.Before(e.expiresAt)) {
		return false, nil
	}
	e := memoryEntry{stored: stored}
	e.stored.Body = append([]byte(nil), stored.Body...)
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}
