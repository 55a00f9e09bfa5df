package metadata

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds metadata store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// RedisStore persists audit entries as JSON values with the retention
// TTL applied on write.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed audit store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &RedisStore{rdb: rdb}, nil
}

// Ping verifies connectivity to the store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SaveBatch writes an ingest audit entry.
func (s *RedisStore) SaveBatch(ctx context.Context, entry BatchEntry) error {
	return s.save(ctx, "audit:batch:"+entry.BatchID, entry)
}

// SaveTransform writes a transform audit entry.
func (s *RedisStore) SaveTransform(ctx context.Context, entry TransformEntry) error {
	return s.save(ctx, "audit:transform:"+entry.BatchID, entry)
}

func (s *RedisStore) save(ctx context.Context, key string, entry any) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if err := s.rdb.Set(ctx, key, body, TTL).Err(); err != nil {
		return fmt.Errorf("save audit entry %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
