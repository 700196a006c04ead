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

package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/metrics"
	"github.com/your-org/helpdesk-assistant/internal/resilience"
	"github.com/your-org/helpdesk-assistant/internal/resolver"
	"github.com/your-org/helpdesk-assistant/internal/servicenow"
	"github.com/your-org/helpdesk-assistant/internal/translate"
)

type fakeTickets struct {
	configured bool
	err        error
	requests   []servicenow.TicketRequest
}

func (f *fakeTickets) Configured() bool { return f.configured }

func (f *fakeTickets) CreateTicket(_ context.Context, req servicenow.TicketRequest) (*servicenow.Ticket, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &servicenow.Ticket{Number: "INC0010001", SysID: "abc123"}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []feedback.Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry feedback.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

type fakeTranslator struct {
	result translate.Result
}

func (f fakeTranslator) Translate(_ context.Context, text, _ string) translate.Result {
	r := f.result
	r.Original = text
	return r
}

type failingResolver struct{}

func (failingResolver) Name() string { return "broken" }

func (failingResolver) Resolve(context.Context, string, *knowledge.Corpus) (resolver.Match, error) {
	return resolver.Match{}, errors.New("extractor exploded")
}

type harness struct {
	service  *Service
	tickets  *fakeTickets
	recorder *fakeRecorder
}

func newHarness(t *testing.T, tickets *fakeTickets, translator translate.Translator) harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := knowledge.NewStore(t.TempDir(), logger)
	store.Replace([]knowledge.FixRecord{
		knowledge.NewFixRecord("Printer is offline", "Restart the print spooler.", []string{"printer", "offline"}, "printer.json"),
		knowledge.NewFixRecord("VPN keeps disconnecting", "Update the VPN client and reconnect.", []string{"vpn", "timeout"}, "vpn.json"),
	})

	recorder := &fakeRecorder{}
	service, err := NewService(Dependencies{
		Corpus:     store,
		Resolver:   resolver.NewKeywordResolver(nil, resolver.DefaultKeywordLimit, logger),
		Translator: translator,
		Tickets:    tickets,
		Feedback:   recorder,
		Metrics:    metrics.Get(),
		Logger:     logger,
	})
	require.NoError(t, err)
	return harness{service: service, tickets: tickets, recorder: recorder}
}

func boolPtr(b bool) *bool { return &b }

func TestHandle_LocalFix(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	resp, err := h.service.Handle(context.Background(), Request{Message: "My VPN connection keeps timing out", RequestID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, resp.Source)
	assert.Equal(t, "VPN keeps disconnecting", resp.Description)
	assert.Equal(t, "Update the VPN client and reconnect.", resp.Fix)
	assert.Equal(t, resolver.StrategyKeyword, resp.Strategy)
	assert.Empty(t, h.tickets.requests, "a found fix is not escalated")

	require.Len(t, h.recorder.entries, 1)
	assert.Equal(t, feedback.OutcomeAnswered, h.recorder.entries[0].Outcome)
	assert.Equal(t, "vpn.json", h.recorder.entries[0].FixSourceID)
	assert.Equal(t, "req-1", h.recorder.entries[0].RequestID)
}

func TestHandle_ResolvedConfirmation(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	resp, err := h.service.Handle(context.Background(), Request{Message: "printer offline", Resolved: boolPtr(true)})
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, resp.Source)
	assert.Equal(t, "Glad it helped!", resp.Message)
	assert.Equal(t, "Restart the print spooler.", resp.Fix)
	assert.Empty(t, h.tickets.requests)
	assert.Equal(t, feedback.OutcomeResolved, h.recorder.entries[0].Outcome)
}

func TestHandle_NotFoundCreatesTicket(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	resp, err := h.service.Handle(context.Background(), Request{
		Message: "What is the weather like today?",
		Email:   "jane@example.com",
		Name:    "Jane",
	})
	require.NoError(t, err)

	assert.Equal(t, SourceServiceNow, resp.Source)
	require.NotNil(t, resp.Ticket)
	assert.Equal(t, "INC0010001", resp.Ticket.Number)
	assert.Equal(t, "INC0010001", resp.TicketID)
	assert.Contains(t, resp.Message, "INC0010001")
	assert.Empty(t, resp.Fix)

	require.Len(t, h.tickets.requests, 1)
	req := h.tickets.requests[0]
	assert.Equal(t, "What is the weather like today?", req.ShortDescription)
	assert.Equal(t, "jane@example.com", req.CallerEmail)
	assert.Contains(t, req.Description, "No documented fix matched.")
	assert.Contains(t, req.Description, "Reported by: Jane")

	entry := h.recorder.entries[0]
	assert.Equal(t, feedback.OutcomeEscalated, entry.Outcome)
	assert.Equal(t, "INC0010001", entry.TicketNumber)
}

func TestHandle_FixDidNotHelp(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	resp, err := h.service.Handle(context.Background(), Request{Message: "printer offline", Resolved: boolPtr(false)})
	require.NoError(t, err)

	assert.Equal(t, SourceServiceNow, resp.Source)
	assert.True(t, strings.HasPrefix(resp.Message, "Sorry the suggested fix did not help."))
	require.Len(t, h.tickets.requests, 1)
	assert.Contains(t, h.tickets.requests[0].Description, "printer.json")
	assert.Equal(t, "printer.json", h.recorder.entries[0].FixSourceID)
}

func TestHandle_TicketingNotConfigured(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: false}, nil)

	resp, err := h.service.Handle(context.Background(), Request{Message: "What is the weather like today?"})
	require.NoError(t, err)

	assert.Equal(t, SourceNone, resp.Source)
	assert.Equal(t, "No documented fix found.", resp.Message)
	assert.Empty(t, h.tickets.requests)
	assert.Equal(t, feedback.OutcomeUnmatched, h.recorder.entries[0].Outcome)

	resp, err = h.service.Handle(context.Background(), Request{Message: "printer offline", Resolved: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, resp.Source)
	assert.Contains(t, resp.Message, "did not help")
}

func TestHandle_TicketFailureDegrades(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "transient",
			err:     resilience.NewUpstreamStatusError("servicenow", http.StatusServiceUnavailable, "down", 0),
			message: "The ticketing system is temporarily unavailable.",
		},
		{
			name:    "circuit open",
			err:     resilience.ErrCircuitBreakerOpen,
			message: "The ticketing system is temporarily unavailable.",
		},
		{
			name:    "fatal",
			err:     resilience.NewUpstreamStatusError("servicenow", http.StatusUnauthorized, "bad credentials", 0),
			message: "The ticketing system rejected the request.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeTickets{configured: true, err: tt.err}, nil)

			resp, err := h.service.Handle(context.Background(), Request{Message: "What is the weather like today?"})
			require.NoError(t, err, "ticket failures degrade instead of failing the request")

			assert.Equal(t, SourceNone, resp.Source)
			assert.Equal(t, tt.message, resp.Error)
			assert.Nil(t, resp.Ticket)
			assert.Equal(t, feedback.OutcomeEscalationFailed, h.recorder.entries[0].Outcome)
		})
	}
}

func TestHandle_EmptyMessage(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	for _, message := range []string{"", "   \n\t"} {
		_, err := h.service.Handle(context.Background(), Request{Message: message})
		require.Error(t, err)
		assert.True(t, resilience.IsInputError(err))
	}
	assert.Empty(t, h.recorder.entries)
}

func TestHandle_TranslatesBeforeResolving(t *testing.T) {
	translator := fakeTranslator{result: translate.Result{
		Text:           "my vpn connection keeps timing out",
		SourceLanguage: "de",
		Translated:     true,
	}}
	h := newHarness(t, &fakeTickets{configured: true}, translator)

	resp, err := h.service.Handle(context.Background(), Request{Message: "Meine VPN-Verbindung hat ständig Zeitüberschreitungen"})
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, resp.Source)
	assert.Equal(t, "de", resp.InputLanguage)
	assert.True(t, resp.Translated)
	assert.Equal(t, "vpn.json", h.recorder.entries[0].FixSourceID)
	assert.Equal(t, "Meine VPN-Verbindung hat ständig Zeitüberschreitungen", h.recorder.entries[0].Query)
}

func TestHandle_TranslationFallbackStillResolves(t *testing.T) {
	translator := fakeTranslator{result: translate.Result{
		Text:           "printer offline",
		SourceLanguage: "und",
		Err:            errors.New("upstream timeout"),
	}}
	h := newHarness(t, &fakeTickets{configured: true}, translator)

	resp, err := h.service.Handle(context.Background(), Request{Message: "printer offline"})
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, resp.Source)
	assert.False(t, resp.Translated)
}

func TestHandle_FeedbackFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)
	h.recorder.err = errors.New("disk full")

	resp, err := h.service.Handle(context.Background(), Request{Message: "printer offline"})
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, resp.Source)
}

func TestHandle_ResolverError(t *testing.T) {
	store := knowledge.NewStore(t.TempDir(), nil)
	service, err := NewService(Dependencies{Corpus: store, Resolver: failingResolver{}})
	require.NoError(t, err)

	_, err = service.Handle(context.Background(), Request{Message: "printer offline"})
	require.Error(t, err)
	assert.False(t, resilience.IsInputError(err))
}

func TestSearch(t *testing.T) {
	h := newHarness(t, &fakeTickets{configured: true}, nil)

	lookup, err := h.service.Search(context.Background(), "printer is offline again")
	require.NoError(t, err)
	assert.True(t, lookup.Match.Found)
	assert.Equal(t, "printer.json", lookup.Match.Record.SourceID)
	assert.Equal(t, float64(2), lookup.Match.Score)

	lookup, err = h.service.Search(context.Background(), "weather")
	require.NoError(t, err)
	assert.False(t, lookup.Match.Found)
	assert.Empty(t, h.tickets.requests, "search never escalates")
	assert.Empty(t, h.recorder.entries, "search is not recorded")
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Dependencies{})
	assert.Error(t, err)

	_, err = NewService(Dependencies{Corpus: knowledge.NewStore(t.TempDir(), nil)})
	assert.Error(t, err)
}
