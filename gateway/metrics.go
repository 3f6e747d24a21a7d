// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_gateway_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"endpoint", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptgate_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"endpoint"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_gateway_provider_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "status"},
	)
	promRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_gateway_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"tier"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promRateLimited)
}

// observeRequest records the counter and latency for one handled request.
func observeRequest(endpoint, status string, elapsedMS int64) {
	promRequestsTotal.WithLabelValues(endpoint, status).Inc()
	promRequestDuration.WithLabelValues(endpoint).Observe(float64(elapsedMS))
}
