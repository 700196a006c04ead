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

// Package chat runs the support pipeline for one user message: translate,
// look up a documented fix and escalate to a ticket when there is none.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/metrics"
	"github.com/your-org/helpdesk-assistant/internal/resilience"
	"github.com/your-org/helpdesk-assistant/internal/resolver"
	"github.com/your-org/helpdesk-assistant/internal/servicenow"
	"github.com/your-org/helpdesk-assistant/internal/translate"
)

// Response sources
const (
	SourceLocal      = "local"
	SourceServiceNow = "servicenow"
	SourceNone       = "none"
)

const (
	msgGladItHelped  = "Glad it helped!"
	msgNoFix         = "No documented fix found."
	msgTicketCreated = "No documented fix found. Ticket %s has been created and the service desk will contact you."
	msgFixFailed     = "Sorry the suggested fix did not help. Ticket %s has been created and the service desk will contact you."
	msgTicketFailed  = "No documented fix found and a ticket could not be created. Please contact the service desk directly."
	msgFixFailedOnly = "Sorry the suggested fix did not help. Please contact the service desk directly."

	errTicketTransient = "The ticketing system is temporarily unavailable."
	errTicketRejected  = "The ticketing system rejected the request."
)

// ErrEmptyMessage is returned for a missing or blank message
var ErrEmptyMessage = resilience.NewBadRequestError("Missing or empty 'message' parameter", nil)

// Request is one chat turn
type Request struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	// Resolved is the user's verdict on a previously served fix; nil when not given
	Resolved  *bool  `json:"resolved,omitempty"`
	RequestID string `json:"-"`
}

// Response is the JSON body returned by /chat
type Response struct {
	Source        string             `json:"source"`
	Description   string             `json:"description,omitempty"`
	Fix           string             `json:"fix,omitempty"`
	Message       string             `json:"message,omitempty"`
	Ticket        *servicenow.Ticket `json:"ticket,omitempty"`
	TicketID      string             `json:"ticket_id,omitempty"`
	Error         string             `json:"error,omitempty"`
	InputLanguage string             `json:"input_language,omitempty"`
	Translated    bool               `json:"translated,omitempty"`
	Strategy      string             `json:"strategy,omitempty"`
	Score         float64            `json:"score,omitempty"`
}

// CorpusSource yields the snapshot used for one request
type CorpusSource interface {
	Current() *knowledge.Corpus
}

// TicketCreator opens incidents
type TicketCreator interface {
	Configured() bool
	CreateTicket(ctx context.Context, req servicenow.TicketRequest) (*servicenow.Ticket, error)
}

// Dependencies wires the pipeline. Translator, Tickets, Feedback and Metrics are optional.
type Dependencies struct {
	Corpus         CorpusSource
	Resolver       resolver.Resolver
	Translator     translate.Translator
	Tickets        TicketCreator
	Feedback       feedback.Recorder
	Metrics        *metrics.Metrics
	TargetLanguage string
	Logger         *zap.Logger
}

// Service handles chat turns
type Service struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewService validates deps and fills defaults
func NewService(deps Dependencies) (*Service, error) {
	if deps.Corpus == nil {
		return nil, fmt.Errorf("chat service requires a corpus source")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("chat service requires a resolver")
	}
	if deps.Translator == nil {
		deps.Translator = translate.NoopTranslator{}
	}
	if deps.TargetLanguage == "" {
		deps.TargetLanguage = translate.DefaultTargetLanguage
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{deps: deps, logger: deps.Logger}, nil
}

// Lookup is the translated message and its resolution, without escalation
type Lookup struct {
	Translation translate.Result
	Match       resolver.Match
}

// Search translates and resolves a message. NotFound is not an error.
func (s *Service) Search(ctx context.Context, message string) (*Lookup, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	translation := s.deps.Translator.Translate(ctx, message, s.deps.TargetLanguage)
	s.recordTranslation(translation)

	match, err := s.deps.Resolver.Resolve(ctx, translation.Text, s.deps.Corpus.Current())
	if err != nil {
		s.recordResolution(s.deps.Resolver.Name(), metrics.OutcomeError)
		return nil, fmt.Errorf("failed to resolve message: %w", err)
	}

	outcome := metrics.OutcomeNotFound
	if match.Found {
		outcome = metrics.OutcomeFound
	}
	s.recordResolution(match.Strategy, outcome)

	return &Lookup{Translation: translation, Match: match}, nil
}

// Handle runs one chat turn
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	lookup, err := s.Search(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	match := lookup.Match

	resp := &Response{
		InputLanguage: lookup.Translation.SourceLanguage,
		Translated:    lookup.Translation.Translated,
		Strategy:      match.Strategy,
	}
	entry := feedback.Entry{
		Query:     req.Message,
		Strategy:  match.Strategy,
		UserEmail: req.Email,
		RequestID: req.RequestID,
	}
	if match.Found {
		resp.Description = match.Record.Description
		resp.Fix = match.Record.Fix
		resp.Score = match.Score
		entry.FixSourceID = match.Record.SourceID
		entry.Score = match.Score
	}

	switch {
	case req.Resolved != nil && *req.Resolved:
		resp.Source = SourceNone
		if match.Found {
			resp.Source = SourceLocal
		}
		resp.Message = msgGladItHelped
		entry.Outcome = feedback.OutcomeResolved

	case match.Found && req.Resolved == nil:
		resp.Source = SourceLocal
		entry.Outcome = feedback.OutcomeAnswered

	default:
		// NotFound, or the user reports the served fix did not work
		s.escalate(ctx, req, lookup, resp, &entry)
	}

	s.record(ctx, entry)

	s.logger.Info("Chat handled",
		zap.String("request_id", req.RequestID),
		zap.String("source", resp.Source),
		zap.String("outcome", string(entry.Outcome)),
		zap.String("strategy", match.Strategy),
		zap.String("fix_source_id", entry.FixSourceID),
		zap.Strings("keywords", match.Keywords),
		zap.String("input_language", resp.InputLanguage),
		zap.Duration("duration", time.Since(start)))

	return resp, nil
}

func (s *Service) escalate(ctx context.Context, req Request, lookup *Lookup, resp *Response, entry *feedback.Entry) {
	if s.deps.Tickets == nil || !s.deps.Tickets.Configured() {
		resp.Source = SourceNone
		resp.Message = msgNoFix
		entry.Outcome = feedback.OutcomeUnmatched
		if lookup.Match.Found {
			resp.Source = SourceLocal
			resp.Message = msgFixFailedOnly
		}
		return
	}

	ticket, err := s.deps.Tickets.CreateTicket(ctx, ticketRequest(req, lookup))
	if err != nil {
		s.recordTicket(metrics.OutcomeFailure)
		s.logger.Warn("Escalation failed",
			zap.String("request_id", req.RequestID),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err))

		resp.Source = SourceNone
		resp.Message = msgTicketFailed
		resp.Error = errTicketRejected
		if resilience.IsTransient(err) || errors.Is(err, resilience.ErrCircuitBreakerOpen) {
			resp.Error = errTicketTransient
		}
		entry.Outcome = feedback.OutcomeEscalationFailed
		return
	}

	s.recordTicket(metrics.OutcomeSuccess)
	resp.Source = SourceServiceNow
	resp.Ticket = ticket
	resp.TicketID = ticket.Number
	resp.Description = ""
	resp.Fix = ""
	if lookup.Match.Found {
		resp.Message = fmt.Sprintf(msgFixFailed, ticket.Number)
	} else {
		resp.Message = fmt.Sprintf(msgTicketCreated, ticket.Number)
	}
	entry.Outcome = feedback.OutcomeEscalated
	entry.TicketNumber = ticket.Number
}

// ticketRequest describes the incident with everything the service desk needs
func ticketRequest(req Request, lookup *Lookup) servicenow.TicketRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "User message: %s\n", strings.TrimSpace(req.Message))
	if lookup.Translation.Translated {
		fmt.Fprintf(&b, "Translated (%s): %s\n", lookup.Translation.SourceLanguage, lookup.Translation.Text)
	}
	if lookup.Match.Found {
		fmt.Fprintf(&b, "Suggested fix (%s) did not resolve the issue: %s\n",
			lookup.Match.Record.SourceID, lookup.Match.Record.Description)
	} else {
		b.WriteString("No documented fix matched.\n")
	}
	if len(lookup.Match.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(lookup.Match.Keywords, ", "))
	}
	if req.Name != "" {
		fmt.Fprintf(&b, "Reported by: %s\n", req.Name)
	}

	return servicenow.TicketRequest{
		ShortDescription: lookup.Translation.Text,
		Description:      strings.TrimSpace(b.String()),
		CallerEmail:      req.Email,
		CallerName:       req.Name,
	}
}

// record writes to the feedback log; a failed write never fails the request
func (s *Service) record(ctx context.Context, entry feedback.Entry) {
	if s.deps.Feedback == nil {
		return
	}
	if err := s.deps.Feedback.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record feedback", zap.String("request_id", entry.RequestID), zap.Error(err))
	}
}

func (s *Service) recordTranslation(result translate.Result) {
	if s.deps.Metrics == nil {
		return
	}
	switch {
	case result.Err != nil:
		s.deps.Metrics.RecordTranslation(metrics.OutcomeFallback)
	case result.Translated:
		s.deps.Metrics.RecordTranslation(metrics.OutcomeSuccess)
	default:
		s.deps.Metrics.RecordTranslation(metrics.OutcomeSkipped)
	}
}

func (s *Service) recordResolution(strategy, outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordResolution(strategy, outcome)
	}
}

func (s *Service) recordTicket(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTicket(outcome)
	}
}
