// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// Metrics cover the streaming chat path: request counters, output token
// counters, time-to-first-token and total stream duration histograms, and
// an active-stream gauge. Exposed on /metrics for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "smartpresence"
	streamingSubsystem = "chat"
)

// StreamingMetrics holds the Prometheus metrics for streaming chat.
// Initialize once at startup via NewStreamingMetrics.
type StreamingMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec

	// TokensTotal counts streamed tokens by direction.
	TokensTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency to first token by endpoint.
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration by endpoint and
	// status.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams gauges currently open streams.
	ActiveStreams prometheus.Gauge
}

// NewStreamingMetrics registers and returns the streaming metric set.
func NewStreamingMetrics() *StreamingMetrics {
	return &StreamingMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "requests_total",
			Help:      "Chat requests by endpoint and status.",
		}, []string{"endpoint", "status"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "tokens_total",
			Help:      "Streamed tokens by direction.",
		}, []string{"direction"}),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from request start to first content token.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"endpoint"}),

		StreamDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total stream duration by endpoint and status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"endpoint", "status"}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "active_streams",
			Help:      "Currently open chat streams.",
		}),
	}
}
