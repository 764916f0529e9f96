/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes the process's Prometheus metrics: HTTP
// surface, database, and the playback-specific counters and gauges the
// engine and mixer update on every command and state transition.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackcore_api_requests_total",
		Help: "Total HTTP requests served, by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbackcore_api_request_duration_seconds",
		Help:    "HTTP request latency, by method, endpoint, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbackcore_api_active_connections",
		Help: "In-flight HTTP requests, including open SSE streams.",
	})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbackcore_db_query_duration_seconds",
		Help:    "Database query latency, by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackcore_db_errors_total",
		Help: "Database errors, by operation and reason.",
	}, []string{"operation", "reason"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbackcore_db_connections_active",
		Help: "Open connections in the database pool.",
	})

	EngineCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackcore_engine_commands_total",
		Help: "Engine commands issued, by command and outcome.",
	}, []string{"command", "outcome"})

	ActiveDecodeChains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbackcore_active_decode_chains",
		Help: "Decode chains currently allocated.",
	})

	BufferUnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playbackcore_buffer_underruns_total",
		Help: "Ring buffer underruns detected across all chains.",
	})

	CrossfadesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playbackcore_crossfades_total",
		Help: "Crossfades completed between consecutive passages.",
	})

	DegradationMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbackcore_degradation_mode",
		Help: "Current degradation ladder step (0=normal, 1=reduced chains, 2=single passage only).",
	})
)

// Handler serves the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
