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

// Package api exposes the help desk assistant over HTTP
package api

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/chat"
	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/health"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/metrics"
	"github.com/your-org/helpdesk-assistant/internal/resilience"
	"github.com/your-org/helpdesk-assistant/internal/translate"
)

const (
	// DefaultRequestTimeout bounds one request, covering translation plus a ticket with retries
	DefaultRequestTimeout = 60 * time.Second
	// DefaultRecentFeedback is the page size of /admin/feedback
	DefaultRecentFeedback = 50
)

//go:embed static
var staticFiles embed.FS

// Reloader rebuilds the knowledge base on demand
type Reloader interface {
	Reload(ctx context.Context) (*knowledge.Corpus, knowledge.LoadReport, error)
}

// FeedbackReader exposes the feedback log to admins
type FeedbackReader interface {
	Stats(ctx context.Context) (*feedback.Stats, error)
	Recent(ctx context.Context, limit int) ([]feedback.Entry, error)
}

// Dependencies are the collaborators behind the HTTP surface. Only Chat is required.
type Dependencies struct {
	Chat           *chat.Service
	Tickets        chat.TicketCreator
	Translator     translate.Translator
	TargetLanguage string
	Knowledge      Reloader
	Feedback       FeedbackReader
	Health         *health.Manager
	Metrics        *metrics.Metrics
	AdminToken     string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server holds the router and its handlers
type Server struct {
	deps         Dependencies
	router       *gin.Engine
	errorHandler *resilience.ErrorHandler
	logger       *zap.Logger
}

// NewServer builds the router
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("api server requires a chat service")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Translator == nil {
		deps.Translator = translate.NoopTranslator{}
	}
	if deps.TargetLanguage == "" {
		deps.TargetLanguage = translate.DefaultTargetLanguage
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		deps:         deps,
		errorHandler: resilience.NewErrorHandler(deps.Logger),
		logger:       deps.Logger,
	}
	router, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.router = router
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() (*gin.Engine, error) {
	router := gin.New()
	router.Use(RequestID(), AccessLog(s.logger, s.deps.Metrics), Recovery(s.logger), SecurityHeaders())

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded assets: %w", err)
	}
	router.GET("/", createIndexHandler(assets))
	router.StaticFS("/static", http.FS(assets))

	if s.deps.Health != nil {
		router.GET("/health", gin.WrapF(s.deps.Health.HTTPHandler()))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/")
	if s.deps.RateLimitRPS > 0 {
		limited.Use(NewRateLimiter(s.deps.RateLimitRPS, s.deps.RateLimitBurst).Middleware())
	}
	limited.POST("/chat", s.handleChat)
	limited.POST("/create_servicenow_ticket", s.handleCreateTicket)
	limited.POST("/search", s.handleSearch)
	limited.POST("/translate", s.handleTranslate)

	admin := router.Group("/admin", AdminAuth(s.deps.AdminToken))
	admin.POST("/reload", s.handleReload)
	admin.GET("/feedback", s.handleRecentFeedback)
	admin.GET("/feedback/stats", s.handleFeedbackStats)

	return router, nil
}

func createIndexHandler(assets fs.FS) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := fs.ReadFile(assets, "index.html")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Chat page unavailable"})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}

// requestContext bounds a handler's work by the request timeout
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.deps.RequestTimeout)
}

// writeError maps err to 400 for caller mistakes and 500 otherwise
func (s *Server) writeError(c *gin.Context, err error, operation string) {
	serviceErr := s.errorHandler.WrapError(err, operation)
	status := http.StatusInternalServerError
	if resilience.IsInputError(serviceErr) {
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	c.JSON(status, serviceErr.ToErrorResponse(requestID(c)))
}
