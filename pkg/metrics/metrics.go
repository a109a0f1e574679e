// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for the
// authentication flow: identity API request counters and latencies,
// ceremony outcomes, and error counts by taxonomy code.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all authflow metrics
	Namespace = "authflow"

	// Label names
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelCeremony   = "ceremony"
	LabelStatus     = "status"
	LabelCode       = "code"

	// Status values
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"

	// Ceremony names
	CeremonyLogin        = "login"
	CeremonyRegistration = "registration"
)

var (
	// RequestsTotal tracks identity API requests by method and response status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of identity API requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// RequestDuration tracks identity API request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of identity API requests in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 13},
		},
		[]string{LabelMethod},
	)

	// CeremoniesTotal tracks WebAuthn ceremony outcomes.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "webauthn_ceremonies_total",
			Help:      "Total number of WebAuthn ceremonies by type and outcome",
		},
		[]string{LabelCeremony, LabelStatus},
	)

	// ErrorsTotal tracks flow errors by taxonomy code.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of flow errors by taxonomy code",
		},
		[]string{LabelCode},
	)
)

// RecordRequest increments the request counter and observes latency.
func RecordRequest(method, statusCode string, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, statusCode).Inc()
	RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCeremony increments the ceremony outcome counter.
func RecordCeremony(ceremony, status string) {
	CeremoniesTotal.WithLabelValues(ceremony, status).Inc()
}

// RecordError increments the error counter for a taxonomy code.
func RecordError(code string) {
	ErrorsTotal.WithLabelValues(code).Inc()
}
