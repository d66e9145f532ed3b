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

	"github.com/go-audio/wav"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

const wavFormatPCM = 1

// WAVDecoder decodes integer PCM WAV data, including streams whose header
// sizes were never patched (live captures write 0xFFFFFFFF placeholders)
type WAVDecoder struct{}

// NewWAVDecoder creates a WAV decoder
func NewWAVDecoder() *WAVDecoder {
	return &WAVDecoder{}
}

// Decode parses data as a WAV file and normalizes samples to [-1, 1]
func (w *WAVDecoder) Decode(ctx context.Context, data []byte) (*pcm.DecodedBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecodeFailed)
	}

	repaired, err := repairStreamingHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	decoder := wav.NewDecoder(bytes.NewReader(repaired))
	intBuf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if intBuf == nil || intBuf.Format == nil {
		return nil, fmt.Errorf("%w: missing PCM data", ErrDecodeFailed)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: unsupported WAV format tag %d", ErrDecodeFailed, decoder.WavAudioFormat)
	}

	channels := intBuf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrDecodeFailed, channels)
	}
	if len(intBuf.Data) < channels {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecodeFailed)
	}

	samples, err := normalizeInts(intBuf.Data, intBuf.SourceBitDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	buf, err := pcm.NewDecodedBuffer(deinterleave(samples, channels), intBuf.Format.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return buf, nil
}

// normalizeInts scales integer samples of the given bit depth into [-1, 1].
// 8-bit WAV samples are unsigned and centred on 128.
func normalizeInts(data []int, bitDepth int) ([]float32, error) {
	out := make([]float32, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
	case 16, 24, 32:
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range data {
			out[i] = float32(float64(v) / scale)
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	return out, nil
}

// repairStreamingHeader returns a copy of data whose RIFF and data chunk
// sizes match the bytes actually present. The data chunk is trimmed to whole
// frames and anything after it is dropped.
func repairStreamingHeader(data []byte) ([]byte, error) {
	if Sniff(data) != FormatWAV {
		return nil, errors.New("not a RIFF/WAVE stream")
	}

	out := make([]byte, len(data))
	copy(out, data)

	blockAlign := 0
	offset := 12
	for offset+8 <= len(out) {
		id := string(out[offset : offset+4])
		declared := uint64(binary.LittleEndian.Uint32(out[offset+4 : offset+8]))
		body := offset + 8
		remaining := len(out) - body

		switch id {
		case "fmt ":
			if declared < 16 || declared > uint64(remaining) {
				return nil, fmt.Errorf("malformed fmt chunk (%d bytes)", declared)
			}
			blockAlign = int(binary.LittleEndian.Uint16(out[body+12 : body+14]))
			if blockAlign == 0 {
				return nil, errors.New("fmt chunk declares zero block alignment")
			}

		case "data":
			if blockAlign == 0 {
				return nil, errors.New("data chunk precedes fmt chunk")
			}
			size := remaining
			if declared < uint64(remaining) {
				size = int(declared)
			}
			size -= size % blockAlign

			binary.LittleEndian.PutUint32(out[offset+4:offset+8], uint32(size)) //nolint:gosec // G115: bounded by input length
			out = out[:body+size]
			binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8)) //nolint:gosec // G115: bounded by input length
			return out, nil

		default:
			if declared > uint64(remaining) {
				return nil, fmt.Errorf("truncated %q chunk", id)
			}
		}

		size := int(declared)
		offset = body + size + size%2
	}

	return nil, errors.New("missing data chunk")
}
