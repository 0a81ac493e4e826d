package rediscache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/prebid/adstxt-validator/cache"
	"github.com/prebid/adstxt-validator/config"
)

// Store keeps payloads in Redis so that several validator instances share fetched documents.
type Store struct {
	client      redis.UniversalClient
	timeout     time.Duration
	keyTemplate string
}

// New builds a Redis-backed store from configuration.
func New(cfg config.RedisCache) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required for the redis cache")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return NewWithClient(client, cfg.Timeout()), nil
}

// NewWithClient wraps an existing client. A zero timeout falls back to 200ms per call.
func NewWithClient(client redis.UniversalClient, timeout time.Duration) *Store {
	if timeout == 0 {
		timeout = 200 * time.Millisecond
	}
	return &Store{
		client:      client,
		timeout:     timeout,
		keyTemplate: "adstxt:%s",
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.client.Get(readCtx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Redis expiry has millisecond precision; pad it so the envelope check stays authoritative.
	if ttl > 0 {
		ttl += time.Second
	}
	if err := s.client.Set(writeCtx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(writeCtx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// Close releases Redis resources.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return fmt.Sprintf(s.keyTemplate, key)
}
