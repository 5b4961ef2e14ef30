// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package metrics holds the Prometheus instrumentation for Fleetglass:
// ESI gateway traffic, poll cycles, reconciliation events, cache efficiency,
// websocket fan-out, and the circuit breaker guarding the upstream API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ESI Gateway Metrics
	ESIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_requests_total",
			Help: "Total number of ESI requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	ESIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esi_request_duration_seconds",
			Help:    "ESI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	ESICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_hits_total",
			Help: "ESI responses served from the expiry cache without a network call",
		},
		[]string{"endpoint"},
	)

	ESINotModified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_not_modified_total",
			Help: "Conditional ESI requests answered with 304 Not Modified",
		},
		[]string{"endpoint"},
	)

	ESIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_retries_total",
			Help: "ESI request retries by endpoint",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Poll Orchestrator Metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Poll cycles by result (ok, unchanged, fleet_gone, error)",
		},
		[]string{"result"},
	)

	ActivePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_pollers",
			Help: "Number of viewer poll tasks currently running",
		},
	)

	// Reconciliation Metrics
	FleetEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_events_total",
			Help: "Reconciliation events emitted by kind",
		},
		[]string{"kind"},
	)

	// Cache Store Metrics
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache store operations by result (hit, miss, set, delete)",
		},
		[]string{"backend", "result"},
	)

	// WebSocket Metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Currently connected dashboard viewers",
		},
	)

	WebsocketDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_dropped_messages_total",
			Help: "Messages dropped because a viewer buffer was full",
		},
	)

	// Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Messages published to the in-process bus by topic class",
		},
		[]string{"class"},
	)

	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)
