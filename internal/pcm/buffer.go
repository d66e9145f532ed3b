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

package pcm

import (
	"errors"
	"fmt"
	"math"
)

// SampleSize is the width in bytes of one encoded 32-bit float sample
const SampleSize = 4

// ErrInvalidBuffer is returned when decoded audio does not have a usable shape
var ErrInvalidBuffer = errors.New("invalid decoded audio buffer")

// DecodedBuffer holds planar multi-channel float samples
type DecodedBuffer struct {
	Channels   [][]float32
	SampleRate int
}

// NewDecodedBuffer validates and wraps per-channel sample data.
// Every channel must have the same length and at least one channel is required.
func NewDecodedBuffer(channels [][]float32, sampleRate int) (*DecodedBuffer, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidBuffer)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidBuffer, sampleRate)
	}

	length := len(channels[0])
	for c, data := range channels {
		if len(data) != length {
			return nil, fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
				ErrInvalidBuffer, c, len(data), length)
		}
	}

	return &DecodedBuffer{Channels: channels, SampleRate: sampleRate}, nil
}

// NumChannels returns the channel count
func (b *DecodedBuffer) NumChannels() int {
	return len(b.Channels)
}

// Len returns the per-channel sample count
func (b *DecodedBuffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// MonoBuffer is a single channel of float samples
type MonoBuffer struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples
func (m MonoBuffer) Len() int {
	return len(m.Samples)
}

// ByteLen returns the encoded size, always SampleSize*Len()
func (m MonoBuffer) ByteLen() int {
	return SampleSize * len(m.Samples)
}

// Bytes encodes the samples as IEEE-754 float32 values in the given order
func (m MonoBuffer) Bytes(order Endianness) []byte {
	out := make([]byte, m.ByteLen())
	bo := order.ByteOrder()
	for i, sample := range m.Samples {
		bo.PutUint32(out[i*SampleSize:], math.Float32bits(sample))
	}
	return out
}

// DecodeFloat32 is the inverse of MonoBuffer.Bytes.
// Trailing bytes that do not form a whole sample are dropped.
func DecodeFloat32(data []byte, order Endianness) []float32 {
	bo := order.ByteOrder()
	samples := make([]float32, len(data)/SampleSize)
	for i := range samples {
		samples[i] = math.Float32frombits(bo.Uint32(data[i*SampleSize:]))
	}
	return samples
}
