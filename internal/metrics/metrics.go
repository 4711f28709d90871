// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "path", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guard_agent_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_validations_total",
		Help: "Validator chain runs by direction and outcome (pass, blocked, filtered)",
	}, []string{"direction", "outcome"})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_violations_total",
		Help: "Blocking violations by direction and violation type",
	}, []string{"direction", "violation_type"})

	ValidatorFailOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_validator_fail_open_total",
		Help: "Validator errors that were treated as a pass",
	}, []string{"validator"})

	ClassifierCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_classifier_calls_total",
		Help: "Outbound topic classification calls by result (allow, block, error)",
	}, []string{"result"})

	ClassifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guard_agent_classifier_latency_seconds",
		Help:    "Latency of outbound topic classification calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	ClassifierCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_agent_classifier_cache_total",
		Help: "Topic classification cache lookups by result (hit, miss)",
	}, []string{"result"})
)
