// Package redis stores submitted content in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cory-johannsen/argos/internal/config"
	"github.com/cory-johannsen/argos/internal/content"
)

const keyPrefix = "argos:content:"

// ContentStore implements content.Store with one key per hash.
type ContentStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient builds a Redis client from configuration and pings it.
//
// Postcondition: Returns a reachable client or a non-nil error; the client is closed on failure.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewContentStore wraps client. A zero ttl keeps entries forever.
func NewContentStore(client *redis.Client, ttl time.Duration) *ContentStore {
	return &ContentStore{client: client, ttl: ttl}
}

// Put stores data unless the hash is already present.
func (s *ContentStore) Put(ctx context.Context, hash string, data []byte) error {
	if err := s.client.SetNX(ctx, keyPrefix+hash, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing content %s: %w", hash, err)
	}
	return nil
}

// Get loads the payload stored under hash.
//
// Postcondition: Returns content.ErrNotFound for missing or expired keys.
func (s *ContentStore) Get(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("hash %q: %w", hash, content.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading content %s: %w", hash, err)
	}
	return data, nil
}

// Health pings Redis, giving up after timeout.
func (s *ContentStore) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *ContentStore) Close() error {
	return s.client.Close()
}
