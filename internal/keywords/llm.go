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

package keywords

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/your-org/helpdesk-assistant/internal/cache"
)

// Rate limiter defaults: 60 requests per minute.
const (
	defaultRateLimit  = 1.0
	defaultBurst      = 5
	defaultMaxTokens  = 30
	defaultCacheTTL   = 24 * time.Hour
	keywordsNamespace = "keywords"
)

// keywordPrompt is the system prompt for keyword extraction
const keywordPrompt = "Extract 2–4 single-word keywords (comma-separated) that best describe the technical problem " +
	"in the user's message. Respond with the keywords only."

var labelPrefix = regexp.MustCompile(`(?i)^\s*keywords?\s*:\s*`)

// ChatCompleter runs a single system+user prompt against a chat model
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// LLMConfig tunes the LLM extractor
type LLMConfig struct {
	Temperature       float32
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	CacheTTL          time.Duration
}

// DefaultLLMConfig returns the defaults used by the extractor
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature:       0.2,
		MaxTokens:         defaultMaxTokens,
		RequestsPerSecond: defaultRateLimit,
		Burst:             defaultBurst,
		CacheTTL:          defaultCacheTTL,
	}
}

// LLMExtractor asks a chat model for keywords. Model answers are cached;
// failures and empty answers fall back to the stopword extractor.
type LLMExtractor struct {
	client   ChatCompleter
	cache    cache.Cache
	limiter  *rate.Limiter
	config   LLMConfig
	fallback Extractor
	logger   *zap.Logger
}

// NewLLMExtractor creates the extractor; cache may be nil
func NewLLMExtractor(client ChatCompleter, c cache.Cache, config LLMConfig, logger *zap.Logger) *LLMExtractor {
	defaults := DefaultLLMConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LLMExtractor{
		client:   client,
		cache:    c,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		config:   config,
		fallback: NewStopwordExtractor(),
		logger:   logger,
	}
}

// Name implements Extractor
func (e *LLMExtractor) Name() string {
	return KindLLM
}

// Extract implements Extractor
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	key := cache.Key(keywordsNamespace, text)
	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Warn("Keyword cache lookup failed", zap.Error(err))
	} else if ok {
		return ParseKeywordList(cached), nil
	}

	kws, err := e.ask(ctx, text)
	if err != nil || len(kws) == 0 {
		e.logger.Warn("LLM keyword extraction unavailable, using stopword filter",
			zap.Error(err),
			zap.Int("keywords", len(kws)))
		return e.fallback.Extract(ctx, text)
	}

	if err := e.cache.Set(ctx, key, strings.Join(kws, ","), e.config.CacheTTL); err != nil {
		e.logger.Warn("Failed to cache keywords", zap.Error(err))
	}

	return kws, nil
}

func (e *LLMExtractor) ask(ctx context.Context, text string) ([]string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	answer, err := e.client.Complete(ctx, keywordPrompt, text, e.config.Temperature, e.config.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("keyword completion failed: %w", err)
	}

	kws := ParseKeywordList(answer)
	e.logger.Debug("LLM keywords extracted",
		zap.Strings("keywords", kws))
	return kws, nil
}

// ParseKeywordList turns a model answer such as "Keywords: VPN, timeout" into
// normalized terms, dropping stopwords and duplicates.
func ParseKeywordList(answer string) []string {
	answer = labelPrefix.ReplaceAllString(strings.TrimSpace(answer), "")
	parts := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	var out []string
	seen := make(map[string]struct{})
	for _, p := range parts {
		for _, tok := range Tokenize(p) {
			term := Normalize(tok)
			if IsStopword(tok) || IsStopword(term) {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}
