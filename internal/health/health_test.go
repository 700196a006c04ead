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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/resilience"
)

func TestManager_Check(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())

	manager.AddCheckerFunc("healthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("unhealthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "service is down"}
	})

	result := manager.Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
	if result.Service != "test-service" {
		t.Errorf("Expected service to be test-service, got %s", result.Service)
	}
	if result.Version != "1.0.0" {
		t.Errorf("Expected version to be 1.0.0, got %s", result.Version)
	}
	if len(result.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(result.Dependencies))
	}
	if result.Dependencies["unhealthy"].Error != "service is down" {
		t.Errorf("Expected error message, got %s", result.Dependencies["unhealthy"].Error)
	}
	if result.Dependencies["healthy"].Timestamp.IsZero() {
		t.Errorf("Expected timestamp to be set")
	}
}

func TestManager_Check_DegradedStatus(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())

	manager.AddCheckerFunc("healthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("degraded", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Error: "service is slow"}
	})

	result := manager.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected status to be degraded, got %s", result.Status)
	}
}

func TestManager_Check_NoCheckers(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", nil)
	result := manager.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy with no checkers, got %s", result.Status)
	}
}

func TestManager_Check_Timeout(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())
	manager.SetTimeout(50 * time.Millisecond)

	// ignores its context entirely
	manager.AddCheckerFunc("stuck", func(ctx context.Context) CheckResult {
		time.Sleep(500 * time.Millisecond)
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("fast", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	start := time.Now()
	result := manager.Check(context.Background())

	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Expected check to return at the timeout, took %v", elapsed)
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy due to timeout, got %s", result.Status)
	}
	if result.Dependencies["stuck"].Status != StatusUnhealthy {
		t.Errorf("Expected stuck checker to be unhealthy, got %s", result.Dependencies["stuck"].Status)
	}
	if result.Dependencies["fast"].Status != StatusHealthy {
		t.Errorf("Expected fast checker to be healthy, got %s", result.Dependencies["fast"].Status)
	}
}

func TestManager_Names(t *testing.T) {
	manager := NewManager("svc", "1", nil)
	manager.AddChecker("b", StaticChecker(StatusHealthy, ""))
	manager.AddChecker("a", StaticChecker(StatusHealthy, ""))

	names := manager.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Expected sorted names [a b], got %v", names)
	}
}

func TestKnowledgeChecker(t *testing.T) {
	store := knowledge.NewStore(t.TempDir(), zap.NewNop())
	checker := KnowledgeChecker(store)

	result := checker.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected empty knowledge base to be degraded, got %s", result.Status)
	}

	store.Replace([]knowledge.FixRecord{
		knowledge.NewFixRecord("VPN drops", "Restart the client", []string{"vpn"}, "vpn.json"),
	})

	result = checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}
	if result.Metadata["records"] != 1 {
		t.Errorf("Expected 1 record in metadata, got %v", result.Metadata["records"])
	}
}

func TestDatabaseHealthChecker(t *testing.T) {
	healthy := DatabaseHealthChecker("sqlite", func(ctx context.Context) error { return nil })
	if result := healthy.Check(context.Background()); result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	unhealthy := DatabaseHealthChecker("sqlite", func(ctx context.Context) error { return errors.New("disk I/O error") })
	result := unhealthy.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", result.Status)
	}
	if result.Error == "" {
		t.Errorf("Expected error message")
	}
}

func TestExternalServiceHealthChecker(t *testing.T) {
	healthy := ExternalServiceHealthChecker("openai", func(ctx context.Context) error { return nil })
	if result := healthy.Check(context.Background()); result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	failing := ExternalServiceHealthChecker("openai", func(ctx context.Context) error {
		return resilience.NewUpstreamStatusError("openai", http.StatusServiceUnavailable, "overloaded", 0)
	})
	result := failing.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", result.Status)
	}
	if result.Metadata["transient"] != true {
		t.Errorf("Expected transient metadata, got %v", result.Metadata["transient"])
	}
}

func TestCircuitBreakerChecker(t *testing.T) {
	config := resilience.DefaultCircuitBreakerConfig("servicenow")
	config.MaxFailures = 1
	config.ResetTimeout = time.Hour
	breaker := resilience.NewCircuitBreaker(config, zap.NewNop())
	checker := CircuitBreakerChecker(breaker.GetStats)

	if result := checker.Check(context.Background()); result.Status != StatusHealthy {
		t.Errorf("Expected healthy with closed breaker, got %s", result.Status)
	}

	_ = breaker.Execute(context.Background(), func(context.Context) error {
		return resilience.NewUpstreamStatusError("servicenow", http.StatusBadGateway, "bad gateway", 0)
	})

	result := checker.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected degraded with open breaker, got %s", result.Status)
	}
	if result.Metadata["state"] != "open" {
		t.Errorf("Expected open state, got %v", result.Metadata["state"])
	}
}

func TestManager_HTTPHandler(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())
	manager.AddChecker("knowledge", StaticChecker(StatusDegraded, "empty"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	manager.HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for degraded, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	var response HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Status != StatusDegraded {
		t.Errorf("Expected degraded status, got %s", response.Status)
	}
}

func TestManager_HTTPHandler_MethodNotAllowed(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	manager.HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestManager_HTTPHandler_ServiceUnavailable(t *testing.T) {
	manager := NewManager("test-service", "1.0.0", zap.NewNop())
	manager.AddChecker("feedback", StaticChecker(StatusUnhealthy, "down"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	manager.HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
