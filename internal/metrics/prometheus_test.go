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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.RecordSessionStarted()
	m.RecordSessionFinalized(true, false, 0.1)
	m.RecordAcquireFailure()
	m.RecordFragment()
	m.RecordDecodeFailure()
	m.RecordDeliveryFailure()
	m.RecordPayload(4096)
	m.SetState(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 10)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestRecordSessionFinalized(t *testing.T) {
	tests := []struct {
		name      string
		delivered bool
		empty     bool
		completed float64
		emptyOut  float64
	}{
		{"delivered", true, false, 1, 0},
		{"empty", false, true, 0, 1},
		{"failed", false, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics(prometheus.NewRegistry())
			m.RecordSessionFinalized(tt.delivered, tt.empty, 0.25)

			assert.Equal(t, tt.completed, testutil.ToFloat64(m.SessionsCompleted))
			assert.Equal(t, tt.emptyOut, testutil.ToFloat64(m.SessionsEmpty))
			assert.Equal(t, 1, testutil.CollectAndCount(m.FinalizeDuration))
		})
	}
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordFragment()
	m.RecordFragment()
	m.RecordFragment()
	m.RecordAcquireFailure()
	m.SetState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FragmentsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcquireFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionState))
	assert.Zero(t, testutil.ToFloat64(m.DecodeFailures))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionStarted()
		m.RecordSessionFinalized(true, false, 1)
		m.SetState(1)
		m.RecordAcquireFailure()
		m.RecordFragment()
		m.RecordDecodeFailure()
		m.RecordDeliveryFailure()
		m.RecordPayload(10)
	})
}
