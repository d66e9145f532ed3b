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

package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-ptt-go/internal/audio"
	"github.com/loqalabs/loqa-ptt-go/internal/metrics"
	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

// State is the lifecycle phase of a Session
type State int32

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Finalizer turns the buffered fragments of a finished recording into a
// delivered payload
type Finalizer interface {
	Process(ctx context.Context, fragments [][]byte, target pcm.Endianness) error
}

// Session is a push-to-talk recording state machine: Idle, Recording,
// Finalizing, then back to Idle. Start and Stop may be called from any
// goroutine. Start outside Idle and Stop outside Recording return nil without
// touching the device; a Start during Finalizing does not wait for it to end.
type Session struct {
	device    audio.Device
	finalizer Finalizer
	metrics   *metrics.Metrics
	target    pcm.Endianness

	// mu serializes transitions. recvMu orders external fragment delivery
	// against the Recording -> Finalizing transition.
	mu     sync.Mutex
	recvMu sync.Mutex
	state  atomic.Int32

	buffer          *ChunkBuffer
	stream          audio.Stream
	pumpDone        chan struct{}
	recordingTarget pcm.Endianness
}

// Option configures a Session
type Option func(*Session)

// WithDefaultEndianness sets the byte order used when Start is not given one
func WithDefaultEndianness(e pcm.Endianness) Option {
	return func(s *Session) {
		s.target = e
	}
}

// WithMetrics records session lifecycle metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// StartOption configures a single recording
type StartOption func(*startConfig)

type startConfig struct {
	target pcm.Endianness
}

// WithTargetEndianness overrides the payload byte order for one recording
func WithTargetEndianness(e pcm.Endianness) StartOption {
	return func(c *startConfig) {
		c.target = e
	}
}

// New creates an idle session capturing from device
func New(device audio.Device, finalizer Finalizer, opts ...Option) *Session {
	s := &Session{
		device:    device,
		finalizer: finalizer,
		target:    pcm.HostEndianness(),
		buffer:    NewChunkBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.SetState(int(Idle))
	return s
}

// State returns the current state
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.metrics.SetState(int(state))
}

// Buffered returns the number of fragments captured so far
func (s *Session) Buffered() int {
	return s.buffer.Len()
}

// Start acquires the device and begins recording. It blocks until the device
// is granted, fails, or ctx is done. Calling Start outside Idle does nothing.
func (s *Session) Start(ctx context.Context, opts ...StartOption) error {
	// Finalizing holds mu until delivery ends
	if state := s.State(); state == Finalizing {
		log.Printf("⚠️ Start ignored: session is %s", state)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Idle {
		log.Printf("⚠️ Start ignored: session is %s", s.State())
		return nil
	}

	cfg := startConfig{target: s.target}
	for _, opt := range opts {
		opt(&cfg)
	}

	stream, err := s.device.Acquire(ctx)
	if err != nil {
		s.metrics.RecordAcquireFailure()
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
		}
		log.Printf("❌ Failed to start recording: %v", err)
		return fmt.Errorf("failed to start recording: %w", err)
	}

	s.buffer.Reset()
	s.stream = stream
	s.recordingTarget = cfg.target
	s.pumpDone = make(chan struct{})
	s.setState(Recording)
	s.metrics.RecordSessionStarted()

	go s.pump(stream, s.pumpDone)

	log.Printf("🎤 Recording started (%s endian payload)", cfg.target)
	return nil
}

// pump copies device fragments into the buffer until the device closes the
// channel, which happens after release or when the device ends on its own
func (s *Session) pump(stream audio.Stream, done chan<- struct{}) {
	defer close(done)
	for fragment := range stream.Fragments() {
		if s.buffer.Append(fragment) {
			s.metrics.RecordFragment()
		}
	}
	if s.State() == Recording {
		log.Printf("⚠️ Input device stopped delivering audio; %d fragment(s) kept until stop", s.buffer.Len())
	}
}

// ReceiveFragment appends fragment while recording. It reports whether the
// fragment was buffered; empty fragments and fragments arriving outside
// Recording are dropped.
func (s *Session) ReceiveFragment(fragment []byte) bool {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.State() != Recording {
		return false
	}
	if !s.buffer.Append(fragment) {
		return false
	}
	s.metrics.RecordFragment()
	return true
}

// Stop releases the device and runs the buffered recording through the
// finalizer. The session is Idle with an empty buffer afterwards whatever the
// outcome. Calling Stop outside Recording does nothing.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Recording {
		log.Printf("⚠️ Stop ignored: session is %s", s.State())
		return nil
	}

	started := time.Now()
	s.recvMu.Lock()
	s.setState(Finalizing)
	s.recvMu.Unlock()

	delivered, empty := false, false
	defer func() {
		s.buffer.Reset()
		s.stream = nil
		s.pumpDone = nil
		s.setState(Idle)
		s.metrics.RecordSessionFinalized(delivered, empty, time.Since(started).Seconds())
	}()

	s.release()

	fragments := s.buffer.Fragments()
	if len(fragments) == 0 {
		empty = true
		log.Println("🎤 Recording stopped with no audio captured")
		return nil
	}

	log.Printf("🎤 Recording stopped: %d fragment(s), %d bytes", len(fragments), s.buffer.Size())
	if err := s.finalizer.Process(ctx, fragments, s.recordingTarget); err != nil {
		log.Printf("❌ Failed to finalize recording: %v", err)
		return fmt.Errorf("failed to finalize recording: %w", err)
	}

	delivered = true
	return nil
}

// release frees the device stream and waits until every fragment it flushed
// has been buffered
func (s *Session) release() {
	if err := s.stream.Release(); err != nil {
		log.Printf("⚠️ Error releasing input stream: %v", err)
	}
	<-s.pumpDone
}
