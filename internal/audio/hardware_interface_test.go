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

package audio

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHardwareInterfaceBasics tests basic hardware interface operations
func TestHardwareInterfaceBasics(t *testing.T) {
	t.Run("backend_lifecycle", func(t *testing.T) {
		backend := NewMockAudioBackend()

		err := backend.Initialize()
		require.NoError(t, err, "should initialize successfully")
		assert.True(t, backend.IsInitialized())

		err = backend.Terminate()
		require.NoError(t, err, "should terminate successfully")
		assert.False(t, backend.IsInitialized())
	})

	t.Run("backend_initialization_error", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetInitError(fmt.Errorf("hardware initialization failed"))

		err := backend.Initialize()
		require.Error(t, err, "should fail initialization")
		assert.Contains(t, err.Error(), "hardware initialization failed")
	})

	t.Run("double_initialization", func(t *testing.T) {
		backend := NewMockAudioBackend()

		require.NoError(t, backend.Initialize())
		require.NoError(t, backend.Initialize(), "double initialization should be safe")

		initCalls, _ := backend.Calls()
		assert.Equal(t, 2, initCalls)

		_ = backend.Terminate() // Ignore errors during test cleanup
	})

	t.Run("stream_requires_initialization", func(t *testing.T) {
		backend := NewMockAudioBackend()

		_, err := backend.CreateInputStream(16000, 1, 512)
		assert.Error(t, err)
	})

	t.Run("terminate_closes_streams", func(t *testing.T) {
		backend := NewMockAudioBackend()
		require.NoError(t, backend.Initialize())

		_, err := backend.CreateInputStream(16000, 1, 512)
		require.NoError(t, err)
		assert.Equal(t, 1, backend.OpenStreams())

		require.NoError(t, backend.Terminate())
		assert.Equal(t, 0, backend.OpenStreams())
	})
}

// TestInputStreamOperations tests audio input stream operations
func TestInputStreamOperations(t *testing.T) {
	newStream := func(t *testing.T, backend *MockAudioBackend) StreamInterface {
		t.Helper()
		require.NoError(t, backend.Initialize())
		t.Cleanup(func() { _ = backend.Terminate() }) // Ignore errors during test cleanup

		stream, err := backend.CreateInputStream(16000, 1, 512)
		require.NoError(t, err)
		require.NotNil(t, stream)
		return stream
	}

	t.Run("input_stream_lifecycle", func(t *testing.T) {
		stream := newStream(t, NewMockAudioBackend())

		require.NoError(t, stream.Start(), "should start stream")
		assert.True(t, stream.IsActive(), "stream should be active")
		assert.Error(t, stream.Start(), "second start should fail")

		require.NoError(t, stream.Stop(), "should stop stream")
		assert.False(t, stream.IsActive())

		require.NoError(t, stream.Close(), "should close stream")
		require.NoError(t, stream.Close(), "double close should be safe")
	})

	t.Run("read_requires_active_stream", func(t *testing.T) {
		stream := newStream(t, NewMockAudioBackend())

		err := stream.Read(make([]float32, 512))
		assert.Error(t, err)
	})

	t.Run("default_generator_produces_signal", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetSimulateRealTiming(false)
		stream := newStream(t, backend)
		require.NoError(t, stream.Start())

		buffer := make([]float32, 512)
		require.NoError(t, stream.Read(buffer))

		hasNonZero := false
		for _, sample := range buffer {
			if sample != 0.0 {
				hasNonZero = true
				break
			}
		}
		assert.True(t, hasNonZero, "should receive non-zero audio data")
		assert.Len(t, backend.GetRecordedAudioData(), 1)
	})

	t.Run("custom_generator", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetSimulateRealTiming(false)
		stream := newStream(t, backend)

		testValue := float32(0.5)
		stream.(*MockStream).SetAudioDataGenerator(func(data []float32) {
			for i := range data {
				data[i] = testValue
			}
		})
		require.NoError(t, stream.Start())

		buffer := make([]float32, 512)
		require.NoError(t, stream.Read(buffer))
		for i, sample := range buffer {
			assert.Equal(t, testValue, sample, "sample %d should have test value", i)
		}
	})

	t.Run("max_reads_reports_eof", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetSimulateRealTiming(false)
		backend.SetMaxReads(2)
		stream := newStream(t, backend)
		require.NoError(t, stream.Start())

		buffer := make([]float32, 512)
		require.NoError(t, stream.Read(buffer))
		require.NoError(t, stream.Read(buffer))
		assert.ErrorIs(t, stream.Read(buffer), io.EOF)
	})

	t.Run("injected_errors", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetStreamStartError(fmt.Errorf("device busy"))
		stream := newStream(t, backend)

		assert.EqualError(t, stream.Start(), "device busy")
	})
}
