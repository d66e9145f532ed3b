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
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAV container constants for the capture fragments
const (
	WAVHeaderSize   = 44
	PCMBitDepth     = 16
	StreamingLength = 0xFFFFFFFF // size placeholder for streams of unknown length

	wavFormatPCM = 1
)

// WAVHeader is the canonical 44-byte RIFF/WAVE header
type WAVHeader struct {
	RiffID        [4]byte // "RIFF"
	RiffSize      uint32  // file size - 8
	WaveID        [4]byte // "WAVE"
	FmtID         [4]byte // "fmt "
	FmtSize       uint32  // 16 for PCM
	AudioFormat   uint16  // 1 = integer PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte // "data"
	DataSize      uint32
}

// NewStreamingWAVHeader builds a 16-bit PCM header whose sizes are left as
// StreamingLength because the recording length is not known up front
func NewStreamingWAVHeader(sampleRate, channels int) (*WAVHeader, error) {
	if channels < 1 || channels > 0xFFFF {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	blockAlign := channels * PCMBitDepth / 8
	return &WAVHeader{
		RiffID:        [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:      StreamingLength,
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   uint16(channels),                //nolint:gosec // G115: bounds-checked above
		SampleRate:    uint32(sampleRate),              //nolint:gosec // G115: positive, checked above
		ByteRate:      uint32(sampleRate * blockAlign), //nolint:gosec // G115: positive, checked above
		BlockAlign:    uint16(blockAlign),              //nolint:gosec // G115: channels bounded
		BitsPerSample: PCMBitDepth,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      StreamingLength,
	}, nil
}

// Serialize writes the header in little-endian RIFF layout
func (h *WAVHeader) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(WAVHeaderSize)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return buf.Bytes(), nil
}

// appendPCM16 converts float samples in [-1,1] to 16-bit little-endian PCM
func appendPCM16(dst []byte, samples []float32) []byte {
	for _, sample := range samples {
		scaled := sample * 32768
		var val int16
		if scaled > 32767 {
			val = 32767
		} else if scaled <= -32768 {
			val = -32767 // Use -32767 instead of -32768 for symmetry
		} else {
			val = int16(scaled)
		}
		dst = append(dst, byte(val), byte(val>>8))
	}
	return dst
}
