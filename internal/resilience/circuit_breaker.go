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

package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed means calls flow normally
	CircuitClosed CircuitState = iota
	// CircuitOpen means calls fail fast
	CircuitOpen
	// CircuitHalfOpen means a limited number of probe calls are allowed
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Name                string
	MaxFailures         int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsFailureFunc       func(error) bool
}

// DefaultCircuitBreakerConfig opens after 5 consecutive transient failures and probes after 30s
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		MaxFailures:         5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		IsFailureFunc:       IsTransient,
	}
}

// CircuitBreakerStats is a point-in-time view used by health checks
type CircuitBreakerStats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"consecutive_failures"`
	TotalFailures   int       `json:"total_failures"`
	TotalSuccesses  int       `json:"total_successes"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	StateChanged    time.Time `json:"state_changed"`
}

// ErrCircuitBreakerOpen is returned when the circuit breaker is open
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a dependency that keeps failing. Only errors
// accepted by IsFailureFunc count; a rejected credential is the caller's
// problem, not an outage.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	state           CircuitState
	failures        int
	inFlight        int
	totalFailures   int
	totalSuccesses  int
	lastFailureTime time.Time
	stateChanged    time.Time
	now             func() time.Time
	mu              sync.Mutex
	logger          *zap.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.IsFailureFunc == nil {
		config.IsFailureFunc = IsTransient
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}

	return &CircuitBreaker{
		config:       config,
		state:        CircuitClosed,
		stateChanged: time.Now(),
		now:          time.Now,
		logger:       logger,
	}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.acquire() {
		return ErrCircuitBreakerOpen
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.stateChanged) < cb.config.ResetTimeout {
			return false
		}
		cb.setState(CircuitHalfOpen)
		fallthrough
	case CircuitHalfOpen:
		if cb.inFlight >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.inFlight++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if err != nil && cb.config.IsFailureFunc(err) {
		cb.failures++
		cb.totalFailures++
		cb.lastFailureTime = cb.now()

		cb.logger.Debug("Circuit breaker recorded failure",
			zap.String("name", cb.config.Name),
			zap.Error(err),
			zap.Int("failures", cb.failures),
			zap.String("state", cb.state.String()))

		if cb.state == CircuitHalfOpen || cb.failures >= cb.config.MaxFailures {
			cb.setState(CircuitOpen)
		}
		return
	}

	cb.totalSuccesses++
	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.setState(CircuitClosed)
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.stateChanged = cb.now()
	cb.inFlight = 0

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.config.Name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
		zap.Int("failures", cb.failures))
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns current statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:            cb.config.Name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		LastFailureTime: cb.lastFailureTime,
		StateChanged:    cb.stateChanged,
	}
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.logger.Info("Circuit breaker manually reset", zap.String("name", cb.config.Name))
	cb.failures = 0
	cb.setState(CircuitClosed)
}
