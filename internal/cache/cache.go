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

// Package cache provides the explicit result cache shared by the translator and
// the LLM keyword extractor. It supports in-memory LRU and Redis backends with
// configurable expiration.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StorageType represents the type of cache backend
type StorageType string

const (
	// MemoryStorageType keeps entries in a bounded in-process LRU
	MemoryStorageType StorageType = "memory"
	// RedisStorageType stores entries in Redis
	RedisStorageType StorageType = "redis"
	// NoneStorageType disables caching
	NoneStorageType StorageType = "none"
)

// Config holds cache configuration
type Config struct {
	StorageType StorageType   `json:"storage_type"`
	RedisURL    string        `json:"redis_url,omitempty"`
	KeyPrefix   string        `json:"key_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
	MaxEntries  int           `json:"max_entries"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		StorageType: MemoryStorageType,
		KeyPrefix:   "helpdesk:",
		DefaultTTL:  24 * time.Hour,
		MaxEntries:  1000,
	}
}

// Cache stores string values by key. A miss is (", false, nil); errors are
// reserved for backend failures so callers can tell the two apart.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates the cache selected by config
func New(config Config, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	switch config.StorageType {
	case "", MemoryStorageType:
		logger.Info("Using in-memory cache",
			zap.Int("max_entries", config.MaxEntries),
			zap.Duration("default_ttl", config.DefaultTTL))
		return NewMemoryCache(config.MaxEntries, config.DefaultTTL), nil
	case RedisStorageType:
		return NewRedisCache(config, logger)
	case NoneStorageType:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache storage type: %s", config.StorageType)
	}
}

// Key builds a fixed-length cache key from a namespace and arbitrary parts
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything
type Noop struct{}

// Get implements Cache
func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Set implements Cache
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

// Delete implements Cache
func (Noop) Delete(context.Context, string) error { return nil }

// Ping implements Cache
func (Noop) Ping(context.Context) error { return nil }

// Close implements Cache
func (Noop) Close() error { return nil }
