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
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

const (
	// go-mp3 always produces 16-bit little-endian stereo
	mp3Channels      = 2
	mp3BytesPerFrame = 4
	mp3ReadChunk     = 64 * 1024
)

// MP3Decoder decodes MPEG-1/2 layer III data
type MP3Decoder struct{}

// NewMP3Decoder creates an MP3 decoder
func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{}
}

// Decode decodes data into two normalized channels
func (m *MP3Decoder) Decode(ctx context.Context, data []byte) (*pcm.DecodedBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecodeFailed)
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	var raw []byte
	chunk := make([]byte, mp3ReadChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := decoder.Read(chunk)
		raw = append(raw, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
		}
	}

	frames := len(raw) / mp3BytesPerFrame
	if frames == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecodeFailed)
	}

	interleaved := pcm16ToFloat(raw[:frames*mp3BytesPerFrame])

	buf, err := pcm.NewDecodedBuffer(deinterleave(interleaved, mp3Channels), decoder.SampleRate())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return buf, nil
}

// pcm16ToFloat converts signed 16-bit little-endian samples to [-1, 1)
func pcm16ToFloat(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(raw[i*2:])) //nolint:gosec // G115: reinterpreting PCM bits
		out[i] = float32(sample) / 32768
	}
	return out
}
