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

// Package metrics registers the Prometheus metrics of the assistant
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeFallback = "fallback"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the assistant's Prometheus collectors
type Metrics struct {
	ResolutionsTotal    *prometheus.CounterVec
	TranslationsTotal   *prometheus.CounterVec
	TicketsTotal        *prometheus.CounterVec
	CorpusRecords       prometheus.Gauge
	CorpusReloadsTotal  *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Get returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - helpdesk_resolutions_total{strategy,outcome}
//   - helpdesk_translations_total{outcome}
//   - helpdesk_tickets_total{outcome}
//   - helpdesk_corpus_records
//   - helpdesk_corpus_reloads_total{result}
//   - helpdesk_http_request_duration_seconds{method,route,status}
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ResolutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_resolutions_total",
					Help: "Fix resolutions by strategy and outcome",
				},
				[]string{"strategy", "outcome"},
			),

			TranslationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_translations_total",
					Help: "Translation attempts by outcome",
				},
				[]string{"outcome"},
			),

			TicketsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_tickets_total",
					Help: "ServiceNow ticket creation attempts by outcome",
				},
				[]string{"outcome"},
			),

			CorpusRecords: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "helpdesk_corpus_records",
					Help: "Fix records in the active knowledge base snapshot",
				},
			),

			CorpusReloadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_corpus_reloads_total",
					Help: "Knowledge base reloads by result",
				},
				[]string{"result"},
			),

			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "helpdesk_http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
				},
				[]string{"method", "route", "status"},
			),
		}
	})

	return globalMetrics
}

// RecordResolution counts one resolver outcome
func (m *Metrics) RecordResolution(strategy, outcome string) {
	m.ResolutionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordTranslation counts one translation outcome
func (m *Metrics) RecordTranslation(outcome string) {
	m.TranslationsTotal.WithLabelValues(outcome).Inc()
}

// RecordTicket counts one ticket creation outcome
func (m *Metrics) RecordTicket(outcome string) {
	m.TicketsTotal.WithLabelValues(outcome).Inc()
}

// RecordReload counts a knowledge base reload and publishes the record count on success
func (m *Metrics) RecordReload(records int, err error) {
	if err != nil {
		m.CorpusReloadsTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.CorpusReloadsTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.CorpusRecords.Set(float64(records))
}

// ObserveRequest records the latency of one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
