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

package translate

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/cache"
)

const translationsNamespace = "translations"

// CachedTranslator memoizes successful translations in a cache.Cache.
// Fallback results are never cached so a recovered upstream is used at once.
type CachedTranslator struct {
	next   Translator
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTranslator wraps next; ttl <= 0 uses the cache default
func NewCachedTranslator(next Translator, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedTranslator {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTranslator{next: next, cache: c, ttl: ttl, logger: logger}
}

// Translate implements Translator
func (t *CachedTranslator) Translate(ctx context.Context, text, targetLang string) Result {
	key := cache.Key(translationsNamespace, targetLang, text)

	if raw, ok, err := t.cache.Get(ctx, key); err != nil {
		t.logger.Warn("Translation cache lookup failed", zap.Error(err))
	} else if ok {
		var cached Result
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached
		}
		t.logger.Warn("Discarding undecodable cached translation")
	}

	result := t.next.Translate(ctx, text, targetLang)
	if result.Err != nil {
		return result
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := t.cache.Set(ctx, key, string(raw), t.ttl); err != nil {
			t.logger.Warn("Failed to cache translation", zap.Error(err))
		}
	}
	return result
}
