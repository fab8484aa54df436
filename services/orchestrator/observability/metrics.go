// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes the Prometheus metrics of the chat
// orchestrator.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "deskmind"
	subsystem = "chat"
)

// ChatMetrics instruments the chat pipeline.
//
// # Thread Safety
//
// Prometheus collectors are safe for concurrent use.
type ChatMetrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	ActiveStreams        prometheus.Gauge
	TimeToFirstFragment  prometheus.Histogram
	ToolInvocationsTotal *prometheus.CounterVec
	ProviderFailures     *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *ChatMetrics
)

// Metrics returns the process-wide collectors, registering them on first
// use.
func Metrics() *ChatMetrics {
	metricsOnce.Do(func() {
		metrics = &ChatMetrics{
			RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Chat requests by endpoint and terminal status.",
			}, []string{"endpoint", "status"}),

			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end chat latency by endpoint.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			}, []string{"endpoint"}),

			TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tokens_total",
				Help:      "Estimated tokens processed by direction (input or output).",
			}, []string{"direction"}),

			ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_streams",
				Help:      "Streaming chat responses currently open.",
			}),

			TimeToFirstFragment: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Latency until the first streamed fragment.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}),

			ToolInvocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tool_invocations_total",
				Help:      "Reasoning tool calls by tool name.",
			}, []string{"tool"}),

			ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_failures_total",
				Help:      "Model provider failures by provider name.",
			}, []string{"provider"}),

			ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Request errors by endpoint and kind.",
			}, []string{"endpoint", "kind"}),
		}
	})
	return metrics
}

// ObserveRequest records one finished request.
func (m *ChatMetrics) ObserveRequest(endpoint, status string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTokens records estimated token flow for one exchange.
func (m *ChatMetrics) ObserveTokens(input, output int) {
	m.TokensTotal.WithLabelValues("input").Add(float64(input))
	m.TokensTotal.WithLabelValues("output").Add(float64(output))
}
