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

package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

// ErrDecodeFailed is returned for empty, malformed or unsupported audio
var ErrDecodeFailed = errors.New("audio decode failed")

// Format names a container the decoders understand
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// Decoder turns an encoded blob into planar float samples
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*pcm.DecodedBuffer, error)
}

// Sniff identifies the container from its leading bytes
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync: 11 set bits
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// AutoDecoder dispatches to the decoder registered for the sniffed format
type AutoDecoder struct {
	decoders map[Format]Decoder
}

// NewAutoDecoder creates a decoder handling WAV and MP3 input
func NewAutoDecoder() *AutoDecoder {
	return &AutoDecoder{
		decoders: map[Format]Decoder{
			FormatWAV: NewWAVDecoder(),
			FormatMP3: NewMP3Decoder(),
		},
	}
}

// Register installs or replaces the decoder for format
func (a *AutoDecoder) Register(format Format, decoder Decoder) {
	a.decoders[format] = decoder
}

// Decode sniffs data and decodes it with the matching decoder
func (a *AutoDecoder) Decode(ctx context.Context, data []byte) (*pcm.DecodedBuffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecodeFailed)
	}

	format := Sniff(data)
	decoder, ok := a.decoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized audio format", ErrDecodeFailed)
	}

	return decoder.Decode(ctx, data)
}

// deinterleave splits frame-interleaved samples into per-channel slices.
// A trailing partial frame is dropped.
func deinterleave(samples []float32, channels int) [][]float32 {
	frames := len(samples) / channels
	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * channels
		for c := 0; c < channels; c++ {
			planar[c][f] = samples[base+c]
		}
	}
	return planar
}
