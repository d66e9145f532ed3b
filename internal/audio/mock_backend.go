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
	"math"
	"sync"
	"time"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	startError         error
	readError          error
	maxReads           int
	simulateRealTiming bool
	generator          func([]float32)
	initCalls          int
	terminateCalls     int
	recordedAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:            make(map[string]*MockStream),
		simulateRealTiming: true,
		recordedAudioData:  make([][]float32, 0),
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetStreamStartError makes every stream created afterwards fail on Start()
func (m *MockAudioBackend) SetStreamStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetStreamReadError makes every stream created afterwards fail on Read()
func (m *MockAudioBackend) SetStreamReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readError = err
}

// SetMaxReads limits how many buffers each new stream yields before
// reporting io.EOF, simulating a device that goes away. Zero means unlimited.
func (m *MockAudioBackend) SetMaxReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxReads = n
}

// SetSimulateRealTiming controls whether Read sleeps for the buffer duration
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetAudioDataGenerator sets the sample generator used by new streams
func (m *MockAudioBackend) SetAudioDataGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generator = generator
}

// GetRecordedAudioData returns every buffer handed out by Read
func (m *MockAudioBackend) GetRecordedAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.recordedAudioData))
	copy(result, m.recordedAudioData)
	return result
}

// OpenStreams returns the number of streams that have not been closed
func (m *MockAudioBackend) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// IsInitialized reports whether Initialize was called without a matching Terminate
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Calls returns how many times Initialize and Terminate were called
func (m *MockAudioBackend) Calls() (initCalls, terminateCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls, m.terminateCalls
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initCalls++
	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem and closes leftover streams
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	m.terminateCalls++
	if m.terminateError != nil {
		err := m.terminateError
		m.mu.Unlock()
		return err
	}

	var streams []*MockStream
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}

	// Release the lock before calling Stop/Close to avoid deadlocks
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Stop()  // Ignore errors during cleanup
		_ = stream.Close() // Ignore errors during cleanup
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CreateInputStream creates a mock input stream
func (m *MockAudioBackend) CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	streamID := fmt.Sprintf("input_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
		startError:         m.startError,
		readError:          m.readError,
		maxReads:           m.maxReads,
		audioDataGenerator: m.generator,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	sampleRate         float64
	channels           int
	bufferSize         int
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	startError         error
	readError          error
	maxReads           int
	reads              int
	phase              float64
	audioDataGenerator func([]float32)
}

// SetAudioDataGenerator sets a function to generate mock audio input data
func (m *MockStream) SetAudioDataGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioDataGenerator = generator
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isActive = false
	return nil
}

// Close closes the mock stream and detaches it from the backend
func (m *MockStream) Close() error {
	m.mu.Lock()
	if !m.isOpen {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.isOpen = false
	m.isActive = false
	m.mu.Unlock()

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()
	return nil
}

// Read fills data with generated samples
func (m *MockStream) Read(data []float32) error {
	m.mu.Lock()

	if m.readError != nil {
		m.mu.Unlock()
		return m.readError
	}

	if !m.isActive {
		m.mu.Unlock()
		return fmt.Errorf("stream not active")
	}

	if m.maxReads > 0 && m.reads >= m.maxReads {
		m.mu.Unlock()
		return io.EOF
	}
	m.reads++

	if m.audioDataGenerator != nil {
		m.audioDataGenerator(data)
	} else {
		// Default: 440 Hz sine, continuous across reads
		step := 2 * math.Pi * 440 / m.sampleRate
		for i := 0; i < len(data); i += m.channels {
			v := float32(0.1 * math.Sin(m.phase))
			for c := 0; c < m.channels && i+c < len(data); c++ {
				data[i+c] = v
			}
			m.phase += step
		}
	}

	simulate := m.simulateRealTiming
	frames := len(data) / max(m.channels, 1)
	m.mu.Unlock()

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.backend.mu.Lock()
	m.backend.recordedAudioData = append(m.backend.recordedAudioData, dataCopy)
	m.backend.mu.Unlock()

	if simulate {
		time.Sleep(time.Duration(float64(frames) / m.sampleRate * float64(time.Second)))
	}

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}
