// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codesnip/codesnip/internal/auth"
)

// AuthMetrics records auth events as Prometheus series. It implements auth.Recorder.
type AuthMetrics struct {
	Operations    *prometheus.CounterVec
	GateDecisions *prometheus.CounterVec
	HashDuration  *prometheus.HistogramVec
	Emails        *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

var _ auth.Recorder = (*AuthMetrics)(nil)

// NewAuthMetrics creates and registers the auth metrics on reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesnip_auth_operations_total",
				Help: "Auth service operations by operation and result kind",
			},
			[]string{"operation", "result"},
		),
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesnip_auth_gate_decisions_total",
				Help: "Bearer authentication decisions by result kind",
			},
			[]string{"result"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codesnip_auth_password_hash_seconds",
				Help:    "Password hash and verify latency",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		Emails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesnip_auth_emails_total",
				Help: "Auth email dispatches by kind and status",
			},
			[]string{"kind", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codesnip_http_requests_total",
				Help: "HTTP API requests by route and status class",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.Operations, m.GateDecisions, m.HashDuration, m.Emails, m.HTTPRequests)
	return m
}

// ObserveOperation implements auth.Recorder.
func (m *AuthMetrics) ObserveOperation(operation string, kind auth.ErrorKind) {
	m.Operations.WithLabelValues(operation, kind.String()).Inc()
}

// ObserveGateDecision implements auth.Recorder.
func (m *AuthMetrics) ObserveGateDecision(kind auth.ErrorKind) {
	m.GateDecisions.WithLabelValues(kind.String()).Inc()
}

// ObserveHash implements auth.Recorder.
func (m *AuthMetrics) ObserveHash(operation string, d time.Duration) {
	m.HashDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveEmail implements auth.Recorder.
func (m *AuthMetrics) ObserveEmail(kind string, ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.Emails.WithLabelValues(kind, status).Inc()
}

// ObserveHTTPRequest counts an API request. Status is collapsed to its class
// ("2xx", "4xx", ...) to bound cardinality.
func (m *AuthMetrics) ObserveHTTPRequest(route string, status int) {
	class := "other"
	if status >= 100 && status < 600 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.HTTPRequests.WithLabelValues(route, class).Inc()
}
