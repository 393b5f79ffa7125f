package agentconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultRedisKey is the key RedisStore uses when none is configured.
const DefaultRedisKey = "agentevents:agent-configuration"

// MemoryStore keeps the configuration in process.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, ErrNotFound
	}
	return bytes.Clone(s.cfg), nil
}

func (s *MemoryStore) Put(ctx context.Context, cfg json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = bytes.Clone(cfg)
	return nil
}

// RedisStore keeps the configuration under a single Redis key so every
// service instance sees the same document.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore. An empty key uses DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent configuration: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, cfg json.RawMessage) error {
	if err := s.client.Set(ctx, s.key, []byte(cfg), 0).Err(); err != nil {
		return fmt.Errorf("failed to store agent configuration: %w", err)
	}
	return nil
}
