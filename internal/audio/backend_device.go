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
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// DefaultFragmentInterval matches the delivery cadence of browser recorders
const DefaultFragmentInterval = 250 * time.Millisecond

// BackendDevice turns an AudioBackend into a Device. Each acquired stream
// emits 16-bit PCM fragments; the first one carries a streaming WAV header
// so the concatenation of all fragments is a complete WAV file.
type BackendDevice struct {
	backend          AudioBackend
	params           StreamParams
	fragmentInterval time.Duration
}

// NewBackendDevice creates a device over backend. A non-positive
// fragmentInterval falls back to DefaultFragmentInterval.
func NewBackendDevice(backend AudioBackend, params StreamParams, fragmentInterval time.Duration) *BackendDevice {
	if fragmentInterval <= 0 {
		fragmentInterval = DefaultFragmentInterval
	}
	return &BackendDevice{
		backend:          backend,
		params:           params,
		fragmentInterval: fragmentInterval,
	}
}

// Acquire opens and starts an input stream on the backend
func (d *BackendDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	header, err := NewStreamingWAVHeader(int(d.params.SampleRate), d.params.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if d.params.BufferSize < 1 {
		return nil, fmt.Errorf("%w: invalid buffer size %d", ErrDeviceUnavailable, d.params.BufferSize)
	}
	headerData, err := header.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	if err := d.backend.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	input, err := d.backend.CreateInputStream(d.params.SampleRate, d.params.Channels, d.params.BufferSize)
	if err != nil {
		d.terminate()
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	if err := input.Start(); err != nil {
		if closeErr := input.Close(); closeErr != nil {
			log.Printf("⚠️ Failed to close input stream: %v", closeErr)
		}
		d.terminate()
		return nil, fmt.Errorf("%w: failed to start input stream: %w", ErrDeviceUnavailable, err)
	}

	framesPerFragment := int(d.params.SampleRate * d.fragmentInterval.Seconds())
	if framesPerFragment < d.params.BufferSize {
		framesPerFragment = d.params.BufferSize
	}

	s := &captureStream{
		backend:           d.backend,
		input:             input,
		params:            d.params,
		header:            headerData,
		framesPerFragment: framesPerFragment,
		fragments:         make(chan []byte, 16),
		quit:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	go s.run()

	log.Printf("🎤 Input stream started (%.0f Hz, %d ch)", d.params.SampleRate, d.params.Channels)
	return s, nil
}

func (d *BackendDevice) terminate() {
	if err := d.backend.Terminate(); err != nil {
		log.Printf("⚠️ Failed to terminate audio backend: %v", err)
	}
}

// captureStream reads the backend on its own goroutine and batches frames
// into fragments
type captureStream struct {
	backend           AudioBackend
	input             StreamInterface
	params            StreamParams
	header            []byte
	framesPerFragment int

	fragments chan []byte
	quit      chan struct{}
	done      chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

func (s *captureStream) Fragments() <-chan []byte {
	return s.fragments
}

func (s *captureStream) run() {
	defer close(s.done)
	defer close(s.fragments)

	buffer := make([]float32, s.params.BufferSize*s.params.Channels)
	var pending []byte
	pendingFrames := 0
	headerSent := false

	emit := func() {
		if pendingFrames == 0 {
			return
		}
		fragment := pending
		if !headerSent {
			fragment = append(append(make([]byte, 0, len(s.header)+len(pending)), s.header...), pending...)
			headerSent = true
		}
		s.fragments <- fragment
		pending = nil
		pendingFrames = 0
	}

	for {
		select {
		case <-s.quit:
			emit()
			return
		default:
		}

		if err := s.input.Read(buffer); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("❌ Error reading audio: %v", err)
			} else {
				log.Println("🎤 Input stream ended")
			}
			emit()
			return
		}

		pending = appendPCM16(pending, buffer)
		pendingFrames += s.params.BufferSize
		if pendingFrames >= s.framesPerFragment {
			emit()
		}
	}
}

// Release stops the reader, flushes the last partial fragment and frees
// the backend stream
func (s *captureStream) Release() error {
	s.releaseOnce.Do(func() {
		close(s.quit)
		<-s.done

		var errs []error
		if err := s.input.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop input stream: %w", err))
		}
		if err := s.input.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close input stream: %w", err))
		}
		if err := s.backend.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate audio backend: %w", err))
		}
		s.releaseErr = errors.Join(errs...)
		log.Println("🎤 Input stream released")
	})
	return s.releaseErr
}
