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

// Package servicenow files incidents through the ServiceNow Table API.
package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/resilience"
)

const (
	// DefaultCategory is the incident category used when none is configured
	DefaultCategory = "inquiry"
	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = resilience.DefaultUpstreamTimeout
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 2
	// DefaultMaxWait caps the total time spent sleeping between attempts
	DefaultMaxWait = 15 * time.Second

	serviceName    = "servicenow"
	incidentPath   = "/api/now/table/incident"
	maxErrorBody   = 512
	shortDescLimit = 160
)

// ErrNotConfigured is returned when instance or credentials are missing
var ErrNotConfigured = errors.New("servicenow is not configured")

// Config holds connection settings for a ServiceNow instance
type Config struct {
	InstanceURL string
	Username    string
	Password    string
	Category    string
	Timeout     time.Duration
	MaxRetries  int
	MaxWait     time.Duration
	// BaseDelay is the first backoff delay; zero uses one second
	BaseDelay  time.Duration
	HTTPClient *http.Client
	Breaker    resilience.CircuitBreakerConfig
}

// TicketRequest describes the incident to open
type TicketRequest struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CallerEmail      string `json:"email"`
	CallerName       string `json:"name"`
}

// Ticket identifies a created incident
type Ticket struct {
	Number string `json:"number"`
	SysID  string `json:"sys_id"`
}

type incidentPayload struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CallerID         string `json:"caller_id,omitempty"`
	Category         string `json:"category"`
}

type incidentResponse struct {
	Result *Ticket `json:"result"`
}

// Client creates incidents with bounded retry and a circuit breaker
type Client struct {
	config  Config
	http    *http.Client
	backoff resilience.BackoffConfig
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds a client; it does not contact the instance
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.InstanceURL = strings.TrimRight(strings.TrimSpace(config.InstanceURL), "/")
	if config.Category == "" {
		config.Category = DefaultCategory
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxWait <= 0 {
		config.MaxWait = DefaultMaxWait
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	backoff := resilience.DefaultBackoffConfig()
	backoff.MaxRetries = config.MaxRetries
	backoff.MaxElapsed = config.MaxWait
	backoff.MaxDelay = config.MaxWait
	backoff.RetryOnFunc = resilience.RetryOnTransient
	if config.BaseDelay > 0 {
		backoff.BaseDelay = config.BaseDelay
	}

	breakerConfig := config.Breaker
	if breakerConfig.MaxFailures <= 0 {
		breakerConfig = resilience.DefaultCircuitBreakerConfig(serviceName)
	}
	if breakerConfig.Name == "" {
		breakerConfig.Name = serviceName
	}

	return &Client{
		config:  config,
		http:    httpClient,
		backoff: backoff,
		breaker: resilience.NewCircuitBreaker(breakerConfig, logger),
		logger:  logger,
	}
}

// Configured reports whether instance and credentials are all set
func (c *Client) Configured() bool {
	return c != nil && c.config.InstanceURL != "" && c.config.Username != "" && c.config.Password != ""
}

// BreakerStats exposes the circuit breaker state for health checks
func (c *Client) BreakerStats() resilience.CircuitBreakerStats {
	return c.breaker.GetStats()
}

// CreateTicket opens an incident. Transient failures are retried within the
// configured budget; the returned error is classified by resilience.IsTransient.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (*Ticket, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(req.ShortDescription) == "" {
		return nil, resilience.NewBadRequestError("short_description is required", nil)
	}

	body, err := json.Marshal(incidentPayload{
		ShortDescription: truncate(strings.TrimSpace(req.ShortDescription), shortDescLimit),
		Description:      req.Description,
		CallerID:         req.CallerEmail,
		Category:         c.config.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode incident: %w", err)
	}

	start := time.Now()
	attempts := 0
	var ticket *Ticket

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
			attempts++
			var err error
			ticket, err = c.post(ctx, body)
			return err
		})
	})
	if err != nil {
		c.logger.Error("Failed to create ServiceNow incident",
			zap.Int("attempts", attempts),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("ServiceNow incident created",
		zap.String("number", ticket.Number),
		zap.String("sys_id", ticket.SysID),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(start)))

	return ticket, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.InstanceURL+incidentPath, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.NewUpstreamStatusError(serviceName, 0, err.Error(), 0)
	}
	httpReq.SetBasicAuth(c.config.Username, c.config.Password)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewUpstreamTransportError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resilience.NewUpstreamStatusError(serviceName, resp.StatusCode,
			strings.TrimSpace(string(snippet)), parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var decoded incidentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, resilience.NewUpstreamStatusError(serviceName, resp.StatusCode,
			fmt.Sprintf("malformed response: %v", err), 0)
	}
	if decoded.Result == nil || decoded.Result.Number == "" {
		return nil, resilience.NewUpstreamStatusError(serviceName, resp.StatusCode, "response has no incident number", 0)
	}
	return decoded.Result, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
