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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/loqalabs/loqa-ptt-go/internal/metrics"
	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

// PayloadName is the name every delivery is published under
const PayloadName = "audio"

// ErrDeliveryFailed is returned when the sink rejects a payload
var ErrDeliveryFailed = errors.New("audio delivery failed")

// Decoder turns the concatenated recording into planar samples
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*pcm.DecodedBuffer, error)
}

// Sink receives finished payloads
type Sink interface {
	Deliver(ctx context.Context, delivery Delivery) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, delivery Delivery) error

// Deliver calls f
func (f SinkFunc) Deliver(ctx context.Context, delivery Delivery) error {
	return f(ctx, delivery)
}

// Delivery is one mono float32 payload tagged with its byte order
type Delivery struct {
	Name       string
	Payload    []byte
	Endianness pcm.Endianness
	SampleRate int
	Samples    int
}

// Result is the output of Transcode
type Result struct {
	Payload    []byte
	Endianness pcm.Endianness
	SampleRate int
	Samples    int
	Channels   int
}

// Pipeline decodes a recording, folds it to mono and converts its byte order
type Pipeline struct {
	decoder Decoder
	sink    Sink
	host    pcm.Endianness
	metrics *metrics.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics records decode and delivery outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithHostEndianness overrides the detected host byte order
func WithHostEndianness(e pcm.Endianness) Option {
	return func(p *Pipeline) {
		p.host = e
	}
}

// New creates a pipeline delivering to sink
func New(decoder Decoder, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder: decoder,
		sink:    sink,
		host:    pcm.HostEndianness(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transcode concatenates fragments in order, decodes them, downmixes to mono
// and returns the samples encoded in the target byte order
func (p *Pipeline) Transcode(ctx context.Context, fragments [][]byte, target pcm.Endianness) (*Result, error) {
	blob := concat(fragments)

	decoded, err := p.decoder.Decode(ctx, blob)
	if err != nil {
		p.metrics.RecordDecodeFailure()
		return nil, fmt.Errorf("failed to decode %d bytes of audio: %w", len(blob), err)
	}

	mono := pcm.Downmix(decoded)
	payload := pcm.Convert(mono.Bytes(p.host), p.host, target)

	log.Printf("🔄 Transcoded %d channel(s) into %d mono samples at %d Hz (%s endian)",
		decoded.NumChannels(), mono.Len(), mono.SampleRate, target)

	return &Result{
		Payload:    payload,
		Endianness: target,
		SampleRate: mono.SampleRate,
		Samples:    mono.Len(),
		Channels:   decoded.NumChannels(),
	}, nil
}

// Process transcodes fragments and hands the payload to the sink exactly once
func (p *Pipeline) Process(ctx context.Context, fragments [][]byte, target pcm.Endianness) error {
	result, err := p.Transcode(ctx, fragments, target)
	if err != nil {
		return err
	}

	delivery := Delivery{
		Name:       PayloadName,
		Payload:    result.Payload,
		Endianness: result.Endianness,
		SampleRate: result.SampleRate,
		Samples:    result.Samples,
	}
	if err := p.sink.Deliver(ctx, delivery); err != nil {
		p.metrics.RecordDeliveryFailure()
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	p.metrics.RecordPayload(len(result.Payload))
	log.Printf("📤 Delivered %q payload: %d bytes", delivery.Name, len(delivery.Payload))
	return nil
}

func concat(fragments [][]byte) []byte {
	total := 0
	for _, fragment := range fragments {
		total += len(fragment)
	}
	blob := make([]byte, 0, total)
	for _, fragment := range fragments {
		blob = append(blob, fragment...)
	}
	return blob
}
