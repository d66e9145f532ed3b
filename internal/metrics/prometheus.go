/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for push-to-talk capture.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsEmpty     prometheus.Counter
	SessionState      prometheus.Gauge
	AcquireFailures   prometheus.Counter
	FragmentsReceived prometheus.Counter
	FinalizeDuration  prometheus.Histogram

	// Pipeline metrics
	DecodeFailures   prometheus.Counter
	DeliveryFailures prometheus.Counter
	PayloadBytes     prometheus.Histogram
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_sessions_started_total",
			Help: "Total number of recordings started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_sessions_completed_total",
			Help: "Total number of recordings delivered to the sink",
		}),
		SessionsEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_sessions_empty_total",
			Help: "Total number of recordings stopped without any captured audio",
		}),
		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_session_state",
			Help: "Current session state (0 idle, 1 recording, 2 finalizing)",
		}),
		AcquireFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_device_acquire_failures_total",
			Help: "Total number of failed capture device acquisitions",
		}),
		FragmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_fragments_received_total",
			Help: "Total number of encoded fragments buffered",
		}),
		FinalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptt_finalize_duration_seconds",
			Help:    "Time from stop request until the session is idle again",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),

		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_decode_failures_total",
			Help: "Total number of recordings that could not be decoded",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_delivery_failures_total",
			Help: "Total number of payloads the sink rejected",
		}),
		PayloadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptt_payload_bytes",
			Help:    "Size of delivered mono payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 12), // 4KB to ~8MB
		}),
	}
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionFinalized records how a session ended and how long it took
func (m *Metrics) RecordSessionFinalized(delivered bool, empty bool, durationSeconds float64) {
	if m == nil {
		return
	}
	switch {
	case empty:
		m.SessionsEmpty.Inc()
	case delivered:
		m.SessionsCompleted.Inc()
	}
	m.FinalizeDuration.Observe(durationSeconds)
}

// SetState sets the session state gauge
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

// RecordAcquireFailure increments the acquire failures counter
func (m *Metrics) RecordAcquireFailure() {
	if m == nil {
		return
	}
	m.AcquireFailures.Inc()
}

// RecordFragment increments the fragments received counter
func (m *Metrics) RecordFragment() {
	if m == nil {
		return
	}
	m.FragmentsReceived.Inc()
}

// RecordDecodeFailure increments the decode failures counter
func (m *Metrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

// RecordDeliveryFailure increments the delivery failures counter
func (m *Metrics) RecordDeliveryFailure() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

// RecordPayload records the size of a delivered payload
func (m *Metrics) RecordPayload(sizeBytes int) {
	if m == nil {
		return
	}
	m.PayloadBytes.Observe(float64(sizeBytes))
}
