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

// Package resilience provides the retry, timeout, circuit breaker and error
// classification helpers used around calls to external services.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig holds configuration for exponential backoff retry logic
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxRetries int
	MaxDelay   time.Duration
	// MaxElapsed caps the total time spent waiting between attempts; zero means no cap
	MaxElapsed  time.Duration
	Multiplier  float64
	Jitter      bool
	RetryOnFunc func(error) bool
}

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultMaxDelaySeconds is the default maximum delay in seconds
	DefaultMaxDelaySeconds = 30
	// DefaultMultiplier is the default exponential backoff multiplier
	DefaultMultiplier = 2.0
)

// ErrRetryBudgetExceeded is returned when the next wait would exceed MaxElapsed
var ErrRetryBudgetExceeded = errors.New("retry wait budget exceeded")

// DefaultBackoffConfig returns base delay 1s, max retries 3, doubling per retry
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   1 * time.Second,
		MaxRetries:  DefaultMaxRetries,
		MaxDelay:    DefaultMaxDelaySeconds * time.Second,
		Multiplier:  DefaultMultiplier,
		Jitter:      true,
		RetryOnFunc: DefaultRetryOnFunc,
	}
}

// DefaultRetryOnFunc retries everything except context cancellation
func DefaultRetryOnFunc(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// RetryOnTransient retries only errors classified as transient
func RetryOnTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsTransient(err)
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// WithExponentialBackoff executes a function with exponential backoff retry logic.
// A Retry-After hint carried by the error replaces the computed delay (still
// bounded by MaxDelay).
func WithExponentialBackoff(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryOn := config.RetryOnFunc
	if retryOn == nil {
		retryOn = DefaultRetryOnFunc
	}

	var lastErr error
	var waited time.Duration

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt+1),
					zap.Int("total_attempts", config.MaxRetries+1))
			}
			return nil
		}

		lastErr = err

		if !retryOn(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			return err
		}

		if attempt == config.MaxRetries {
			break
		}

		delay := backoffDelay(config, attempt)
		if hint := RetryAfterHint(err); hint > 0 {
			delay = hint
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		if config.MaxElapsed > 0 && waited+delay > config.MaxElapsed {
			logger.Warn("Retry wait budget exhausted",
				zap.Error(err),
				zap.Duration("waited", waited),
				zap.Duration("next_delay", delay),
				zap.Duration("max_elapsed", config.MaxElapsed))
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExceeded, attempt+1, err)
		}

		logger.Debug("Retrying after delay",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Int("max_retries", config.MaxRetries))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		waited += delay
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("total_attempts", config.MaxRetries+1))

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

func backoffDelay(config BackoffConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	// +/-10% to prevent thundering herd
	if config.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
		delay += jitter
	}
	return delay
}

// RetryWithMaxAttempts is a convenience function for retry logic with custom max attempts
func RetryWithMaxAttempts(ctx context.Context, logger *zap.Logger, maxRetries int, fn RetryFunc) error {
	config := DefaultBackoffConfig()
	config.MaxRetries = maxRetries
	return WithExponentialBackoff(ctx, logger, config, fn)
}
