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

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/chat"
	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/metrics"
	"github.com/your-org/helpdesk-assistant/internal/servicenow"
)

// SearchRequest is the /search payload. Text is accepted for older clients.
type SearchRequest struct {
	Query string `json:"query"`
	Text  string `json:"text"`
}

// SearchResponse is the /search result
type SearchResponse struct {
	Found       bool     `json:"found"`
	Description string   `json:"description,omitempty"`
	Fix         string   `json:"fix,omitempty"`
	Source      string   `json:"source,omitempty"`
	Score       float64  `json:"score,omitempty"`
	Keywords    []string `json:"keywords"`
	Strategy    string   `json:"strategy,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// TranslateRequest is the /translate payload
type TranslateRequest struct {
	Text string `json:"text"`
}

// ReloadResponse reports the snapshot published by /admin/reload
type ReloadResponse struct {
	Records int               `json:"records"`
	Version uint64            `json:"version"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, chat.ErrEmptyMessage, "handling chat")
		return
	}
	req.RequestID = requestID(c)

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.deps.Chat.Handle(ctx, req)
	if err != nil {
		s.writeError(c, err, "handling chat")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	var req servicenow.TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	req.ShortDescription = strings.TrimSpace(req.ShortDescription)
	if req.ShortDescription == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or empty 'short_description' parameter"})
		return
	}
	if s.deps.Tickets == nil || !s.deps.Tickets.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ServiceNow is not configured"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	start := time.Now()
	ticket, err := s.deps.Tickets.CreateTicket(ctx, req)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordTicket(metrics.OutcomeFailure)
		}
		s.writeError(c, err, "creating ticket")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTicket(metrics.OutcomeSuccess)
	}

	s.logger.Info("Ticket created",
		zap.String("request_id", requestID(c)),
		zap.String("number", ticket.Number),
		zap.Duration("duration", time.Since(start)))

	c.JSON(http.StatusOK, ticket)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	_ = c.ShouldBindJSON(&req)
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = strings.TrimSpace(req.Text)
	}
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"found": false, "error": "Empty input"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	lookup, err := s.deps.Chat.Search(ctx, query)
	if err != nil {
		s.writeError(c, err, "searching fixes")
		return
	}

	match := lookup.Match
	resp := SearchResponse{
		Found:    match.Found,
		Keywords: match.Keywords,
		Strategy: match.Strategy,
	}
	if resp.Keywords == nil {
		resp.Keywords = []string{}
	}
	if match.Found {
		resp.Description = match.Record.Description
		resp.Fix = match.Record.Fix
		resp.Source = match.Record.SourceID
		resp.Score = match.Score
	} else {
		resp.Message = "No match found"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTranslate(c *gin.Context) {
	var req TranslateRequest
	_ = c.ShouldBindJSON(&req)
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or empty 'text' parameter"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result := s.deps.Translator.Translate(ctx, text, s.deps.TargetLanguage)
	if result.Err != nil {
		// best effort: the original text is returned untranslated
		s.logger.Warn("Translation fell back to original text",
			zap.String("request_id", requestID(c)),
			zap.Error(result.Err))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReload(c *gin.Context) {
	if s.deps.Knowledge == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Knowledge reload is not available"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	corpus, report, err := s.deps.Knowledge.Reload(ctx)
	if err != nil {
		s.writeError(c, err, "reloading the knowledge base")
		return
	}

	s.logger.Info("Knowledge base reloaded on request",
		zap.String("request_id", requestID(c)),
		zap.Int("records", corpus.Len()),
		zap.Uint64("version", corpus.Version()),
		zap.Int("skipped", len(report.Skipped)))

	c.JSON(http.StatusOK, ReloadResponse{
		Records: corpus.Len(),
		Version: corpus.Version(),
		Skipped: report.Skipped,
	})
}

func (s *Server) handleFeedbackStats(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Feedback log is not available"})
		return
	}

	stats, err := s.deps.Feedback.Stats(c.Request.Context())
	if errors.Is(err, feedback.ErrUnsupportedQuery) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Feedback storage does not support queries"})
		return
	}
	if err != nil {
		s.writeError(c, err, "reading feedback stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRecentFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Feedback log is not available"})
		return
	}

	limit := DefaultRecentFeedback
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.deps.Feedback.Recent(c.Request.Context(), limit)
	if errors.Is(err, feedback.ErrUnsupportedQuery) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Feedback storage does not support queries"})
		return
	}
	if err != nil {
		s.writeError(c, err, "reading feedback")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
