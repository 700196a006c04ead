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

// Package health aggregates dependency checks into a single service status
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/resilience"
)

const (
	// StatusHealthy represents healthy status
	StatusHealthy = "healthy"
	// StatusUnhealthy represents unhealthy status
	StatusUnhealthy = "unhealthy"
	// StatusDegraded represents degraded status
	StatusDegraded = "degraded"
	// DefaultTimeout is the default timeout for health checks
	DefaultTimeout = 5 * time.Second
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status    string                 `json:"status"`
	Latency   time.Duration          `json:"latency"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       time.Duration          `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc is a function adapter for the Checker interface
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements the Checker interface
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager manages health checks for a service
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	checkers    map[string]Checker
	timeout     time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewManager creates a new health check manager
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checkers:    make(map[string]Checker),
		timeout:     DefaultTimeout,
		logger:      logger,
	}
}

// SetTimeout sets the timeout for health checks
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// AddChecker adds a health checker
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// AddCheckerFunc adds a health checker function
func (m *Manager) AddCheckerFunc(name string, checkFunc func(ctx context.Context) CheckResult) {
	m.AddChecker(name, CheckerFunc(checkFunc))
}

// Names returns the registered checker names in sorted order
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all checks concurrently and returns the aggregate result. A
// checker that outlives the timeout is reported unhealthy.
func (m *Manager) Check(ctx context.Context) HealthResponse {
	m.mu.RLock()
	timeout := m.timeout
	checkers := make(map[string]Checker, len(m.checkers))
	for name, checker := range m.checkers {
		checkers[name] = checker
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type named struct {
		name   string
		result CheckResult
	}
	results := make(chan named, len(checkers))

	for name, checker := range checkers {
		go func(name string, checker Checker) {
			start := time.Now()
			result := checker.Check(ctx)
			result.Latency = time.Since(start)
			result.Timestamp = time.Now()
			results <- named{name: name, result: result}
		}(name, checker)
	}

	dependencies := make(map[string]CheckResult, len(checkers))
	for len(dependencies) < len(checkers) {
		select {
		case r := <-results:
			dependencies[r.name] = r.result
		case <-ctx.Done():
			for name := range checkers {
				if _, ok := dependencies[name]; !ok {
					dependencies[name] = CheckResult{
						Status:    StatusUnhealthy,
						Error:     fmt.Sprintf("health check timed out after %v", timeout),
						Latency:   timeout,
						Timestamp: time.Now(),
					}
				}
			}
		}
	}

	overallStatus := StatusHealthy
	for name, result := range dependencies {
		switch result.Status {
		case StatusUnhealthy:
			overallStatus = StatusUnhealthy
			m.logger.Warn("Dependency unhealthy", zap.String("dependency", name), zap.String("error", result.Error))
		case StatusDegraded:
			if overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	return HealthResponse{
		Status:       overallStatus,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime),
		Dependencies: dependencies,
		Metadata:     m.getSystemMetadata(),
		Timestamp:    time.Now(),
	}
}

// StatusCode maps a health status to the HTTP code served for it
func StatusCode(status string) int {
	if status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	// degraded still serves traffic
	return http.StatusOK
}

// HTTPHandler returns a HTTP handler for health checks
func (m *Manager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		result := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(StatusCode(result.Status))

		if err := json.NewEncoder(w).Encode(result); err != nil {
			m.logger.Error("Failed to write health check response", zap.Error(err))
		}
	}
}

func (m *Manager) getSystemMetadata() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"go_version":   runtime.Version(),
		"goroutines":   runtime.NumGoroutine(),
		"memory_alloc": memStats.Alloc,
		"hostname":     getHostname(),
		"process_id":   os.Getpid(),
	}
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// KnowledgeChecker reports the loaded corpus. An empty corpus is degraded:
// every message escalates, but the service still works.
func KnowledgeChecker(store *knowledge.Store) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		corpus := store.Current()
		if corpus == nil {
			return CheckResult{Status: StatusUnhealthy, Error: "knowledge base not loaded"}
		}

		result := CheckResult{
			Status: StatusHealthy,
			Metadata: map[string]interface{}{
				"records":   corpus.Len(),
				"version":   corpus.Version(),
				"loaded_at": corpus.LoadedAt(),
				"dir":       store.Dir(),
			},
		}
		if corpus.Len() == 0 {
			result.Status = StatusDegraded
			result.Error = "knowledge base is empty"
		}
		return result
	})
}

// DatabaseHealthChecker creates a health checker for local storage backends
func DatabaseHealthChecker(name string, pingFunc func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := pingFunc(ctx); err != nil {
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  fmt.Sprintf("%s ping failed: %v", name, err),
			}
		}

		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"backend": name},
		}
	})
}

// ExternalServiceHealthChecker checks an optional upstream. Upstreams only
// degrade the service, since translation and ticketing fall back on failure.
func ExternalServiceHealthChecker(name string, checkFunc func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := checkFunc(ctx); err != nil {
			return CheckResult{
				Status: StatusDegraded,
				Error:  fmt.Sprintf("external service check failed: %v", err),
				Metadata: map[string]interface{}{
					"service":   name,
					"transient": resilience.IsTransient(err),
				},
			}
		}

		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"service": name},
		}
	})
}

// CircuitBreakerChecker reports an open breaker as degraded
func CircuitBreakerChecker(stats func() resilience.CircuitBreakerStats) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		s := stats()
		result := CheckResult{
			Status: StatusHealthy,
			Metadata: map[string]interface{}{
				"state":                s.State,
				"consecutive_failures": s.Failures,
				"total_failures":       s.TotalFailures,
			},
		}
		if s.State != resilience.CircuitClosed.String() {
			result.Status = StatusDegraded
			result.Error = fmt.Sprintf("circuit breaker %s is %s", s.Name, s.State)
		}
		return result
	})
}

// StaticChecker reports a fixed result, e.g. for a disabled dependency
func StaticChecker(status, message string) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		return CheckResult{Status: status, Metadata: map[string]interface{}{"message": message}}
	})
}
