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
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a bounded in-process LRU. The LRU expires entries after the
// default TTL; shorter per-entry TTLs are checked on read.
type MemoryCache struct {
	lru        *expirable.LRU[string, memoryEntry]
	defaultTTL time.Duration
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries
func NewMemoryCache(maxEntries int, defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		lru:        expirable.NewLRU[string, memoryEntry](maxEntries, nil, defaultTTL),
		defaultTTL: defaultTTL,
	}
}

// Get implements Cache
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		m.lru.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache
func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 || ttl > m.defaultTTL {
		ttl = m.defaultTTL
	}
	m.lru.Add(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete implements Cache
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Ping implements Cache
func (m *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close implements Cache
func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}
