// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisConnectTimeout = 5 * time.Second

// RedisClient is the subset of the go-redis client used by RedisCache
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisCache stores entries in Redis under a key prefix
type RedisCache struct {
	client     RedisClient
	prefix     string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewRedisCache connects to the Redis URL in config and verifies the connection
func NewRedisCache(config Config, logger *zap.Logger) (*RedisCache, error) {
	if config.RedisURL == "" {
		return nil, fmt.Errorf("redis cache requires a redis URL")
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.IdleTimeout = 5 * time.Minute

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Using Redis cache",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Duration("default_ttl", config.DefaultTTL))

	return NewRedisCacheWithClient(client, config.KeyPrefix, config.DefaultTTL, logger), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client RedisClient, prefix string, defaultTTL time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get implements Cache
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry from Redis: %w", err)
	}
	return value, true, nil
}

// Set implements Cache
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in Redis: %w", err)
	}
	return nil
}

// Delete implements Cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry from Redis: %w", err)
	}
	return nil
}

// Ping implements Cache
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Cache
func (r *RedisCache) Close() error {
	return r.client.Close()
}
