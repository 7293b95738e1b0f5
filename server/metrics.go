// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's prometheus collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	encryptions     *prometheus.CounterVec
	decryptions     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	websocketActive prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhevm_http_requests_total",
				Help: "Number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhevm_http_request_duration_seconds",
				Help:    "Latency of HTTP requests by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		encryptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhevm_encryptions_total",
				Help: "Number of encryptions by type and result",
			},
			[]string{"type", "result"},
		),
		decryptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhevm_decryptions_total",
				Help: "Number of decryption requests by transport and result code",
			},
			[]string{"transport", "result"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhevm_rate_limited_total",
				Help: "Number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		websocketActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fhevm_websocket_sessions",
				Help: "Number of open gateway websocket sessions",
			},
		),
	}

	registerer.MustRegister(m.requests)
	registerer.MustRegister(m.requestLatency)
	registerer.MustRegister(m.encryptions)
	registerer.MustRegister(m.decryptions)
	registerer.MustRegister(m.rateLimited)
	registerer.MustRegister(m.websocketActive)

	return &m
}
