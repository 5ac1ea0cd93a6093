package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lamed/internal/config"
	"lamed/internal/core"
)

// RedisStorage owns the connection to the key-value backend. Components take
// its Client at construction time; the process closes it on shutdown.
type RedisStorage struct {
	client redis.UniversalClient
}

// Options translates the backend configuration into client options.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, cfg config.RedisConfig) (*RedisStorage, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", core.ErrBackendUnavailable, err)
	}

	return &RedisStorage{client: client}, nil
}

// Client returns the underlying client.
func (r *RedisStorage) Client() redis.UniversalClient {
	return r.client
}

// Ping tests Redis connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
