// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the service's Prometheus collectors. All collectors are
// registered on a private registry so tests can construct many instances.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheItems       prometheus.Gauge
}

// New creates and registers the service collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indiq",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome",
		}, []string{"tool", "outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indiq",
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP attempts by outcome",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indiq",
			Name:      "cache_hits_total",
			Help:      "Response cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "indiq",
			Name:      "cache_misses_total",
			Help:      "Response cache misses",
		}),
		CacheItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "indiq",
			Name:      "cache_items",
			Help:      "Entries currently held by the response cache",
		}),
	}

	m.registry.MustRegister(
		m.ToolCalls,
		m.UpstreamRequests,
		m.CacheHits,
		m.CacheMisses,
		m.CacheItems,
	)
	return m
}

// Registry exposes the private registry for the metrics HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
