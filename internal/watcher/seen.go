package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet remembers event keys already dispatched.
type SeenSet interface {
	// Add records key and reports whether it was not seen before.
	Add(ctx context.Context, key string) (bool, error)
}

// MemorySeenSet keeps keys for the life of the process.
type MemorySeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{keys: make(map[string]struct{})}
}

func (m *MemorySeenSet) Add(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

// RedisSeenSet shares dedup state across restarts and processes.
type RedisSeenSet struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenSet connects to url and verifies the connection.
func NewRedisSeenSet(url, prefix string, ttl time.Duration) (*RedisSeenSet, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisSeenSet{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisSeenSet) Add(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx seen key: %w", err)
	}
	return ok, nil
}

func (r *RedisSeenSet) Close() error {
	return r.rdb.Close()
}
