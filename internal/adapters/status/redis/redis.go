// Package redis keeps the latest sync outcomes in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// Client is the subset of the Redis client the store uses.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Store implements ports.StatusStore on Redis. Each outcome is one JSON
// string value.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

var _ ports.StatusStore = (*Store)(nil)

// New creates a store over an existing client. A zero ttl keeps outcomes
// until overwritten.
func New(client Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to the Redis server named in cfg and checks it answers.
func Dial(ctx context.Context, cfg config.StatusConfig) (*Store, error) {
	var password string
	if cfg.RedisPassword != "" {
		password = os.Getenv(cfg.RedisPassword)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: password,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return New(client, cfg.KeyPrefix, cfg.TTL), nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Save overwrites the outcome stored under key.
func (s *Store) Save(ctx context.Context, key string, o outcome.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving outcome %s: %w", key, err)
	}
	return nil
}

// Load returns the outcome stored under key, or nil.
func (s *Store) Load(ctx context.Context, key string) (*outcome.Outcome, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading outcome %s: %w", key, err)
	}
	var o outcome.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decoding outcome %s: %w", key, err)
	}
	return &o, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
