// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the Wire Pro service.
//
// # Description
//
// Metrics cover the whole answer pipeline:
//   - HTTP requests by endpoint and status
//   - answers by domain, provider and path (llm, fallback, offline)
//   - provider attempts by provider and error kind
//   - banned phrases found in answers
//   - sections padded by the postcheck
//   - end-to-end answer latency
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is also safe on a nil *Metrics, which records nothing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "wirepro"

// Subsystem for answer pipeline metrics
const pipelineSubsystem = "pipeline"

// Answer paths, used as the "path" label.
const (
	PathLLM      = "llm"
	PathFallback = "fallback"
	PathOffline  = "offline"
)

// Metrics holds every Prometheus collector of the service.
//
// # Fields
//
//   - RequestsTotal: HTTP requests by endpoint and status
//   - AnswersTotal: answers by domain, provider and path
//   - AttemptsTotal: provider attempts by provider and outcome
//   - BannedPhrasesTotal: banned phrase occurrences by phrase id
//   - PaddedSectionsTotal: sections appended by the postcheck
//   - AnswerDurationSeconds: end-to-end answer latency by path
type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: endpoint (chat, diagnose, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// AnswersTotal counts delivered answers.
	// Labels: domain, provider, path
	AnswersTotal *prometheus.CounterVec

	// AttemptsTotal counts provider calls.
	// Labels: provider, outcome (ok, network, rejected, config, canceled)
	AttemptsTotal *prometheus.CounterVec

	// BannedPhrasesTotal counts banned phrase occurrences.
	// Labels: phrase_id
	BannedPhrasesTotal *prometheus.CounterVec

	// PaddedSectionsTotal counts mandatory sections the model left out.
	// Labels: section
	PaddedSectionsTotal *prometheus.CounterVec

	// AnswerDurationSeconds measures time from request to final answer.
	// Labels: path
	AnswerDurationSeconds *prometheus.HistogramVec

	// ConversationsArchivedTotal counts conversations archived by the
	// retention sweep.
	// Labels: outcome (archived, failed)
	ConversationsArchivedTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
//
// # Description
//
// Tests pass a fresh prometheus.NewRegistry() so that instances never
// collide.
//
// # Inputs
//
//   - reg: registry to register on. Must not be nil.
//
// # Outputs
//
//   - *Metrics: the registered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		AnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "answers_total",
				Help:      "Total answers by domain, provider and path",
			},
			[]string{"domain", "provider", "path"},
		),

		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "provider_attempts_total",
				Help:      "Total provider attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		BannedPhrasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "banned_phrases_total",
				Help:      "Total banned phrase occurrences found in answers",
			},
			[]string{"phrase_id"},
		),

		PaddedSectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "padded_sections_total",
				Help:      "Total mandatory sections appended by the postcheck",
			},
			[]string{"section"},
		),

		AnswerDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "answer_duration_seconds",
				Help:      "Time from request to final answer in seconds",
				Buckets:   []float64{0.05, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"path"},
		),

		ConversationsArchivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "retention",
				Name:      "conversations_archived_total",
				Help:      "Conversations processed by the retention sweep by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a handled HTTP request.
func (m *Metrics) RecordRequest(endpoint string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordAnswer records a delivered answer and its latency.
//
// # Inputs
//
//   - domain: diagnostic domain of the question.
//   - provider: provider that produced the answer (offline identity included).
//   - fallback: the answer came from a provider other than the first in queue.
//   - offline: the answer was built locally.
//   - seconds: end-to-end duration.
func (m *Metrics) RecordAnswer(domain, provider string, fallback, offline bool, seconds float64) {
	if m == nil {
		return
	}
	path := PathLLM
	switch {
	case offline:
		path = PathOffline
	case fallback:
		path = PathFallback
	}
	m.AnswersTotal.WithLabelValues(domain, provider, path).Inc()
	m.AnswerDurationSeconds.WithLabelValues(path).Observe(seconds)
}

// RecordAttempt records one provider call. An empty kind means success.
func (m *Metrics) RecordAttempt(provider, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.AttemptsTotal.WithLabelValues(provider, kind).Inc()
}

// RecordBannedPhrase records one banned phrase occurrence.
func (m *Metrics) RecordBannedPhrase(phraseID string) {
	if m == nil {
		return
	}
	m.BannedPhrasesTotal.WithLabelValues(phraseID).Inc()
}

// RecordPaddedSection records one section appended by the postcheck.
func (m *Metrics) RecordPaddedSection(section string) {
	if m == nil {
		return
	}
	m.PaddedSectionsTotal.WithLabelValues(section).Inc()
}

// RecordSweep records the outcome of one retention sweep.
func (m *Metrics) RecordSweep(archived, failed int) {
	if m == nil {
		return
	}
	m.ConversationsArchivedTotal.WithLabelValues("archived").Add(float64(archived))
	m.ConversationsArchivedTotal.WithLabelValues("failed").Add(float64(failed))
}
