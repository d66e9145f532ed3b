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

package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary Frame Protocol for hub uploads
// Frames are small enough for ESP32-class hubs to buffer one at a time

// FrameType represents the type of frame being transmitted
type FrameType uint8

const (
	// Audio frame types
	FrameTypeAudioData FrameType = 0x01
	FrameTypeAudioEnd  FrameType = 0x02
)

// FrameFlags carries per-frame payload attributes
type FrameFlags uint8

const (
	// FlagBigEndian marks audio samples stored most significant byte first
	FlagBigEndian FrameFlags = 1 << 0
)

// Frame represents a binary frame in the protocol
type Frame struct {
	Type      FrameType
	Flags     FrameFlags
	SessionID uint32
	Sequence  uint32
	Timestamp uint64
	Data      []byte
}

// FrameHeader represents the fixed-size frame header (24 bytes)
type FrameHeader struct {
	Magic     uint32     // 0x4C4F5141 ("LOQA")
	Type      FrameType  // Frame type (1 byte)
	Flags     FrameFlags // Payload attributes (1 byte)
	Length    uint16     // Data payload length (2 bytes)
	SessionID uint32     // Session identifier (4 bytes)
	Sequence  uint32     // Sequence number (4 bytes)
	Timestamp uint64     // Unix timestamp microseconds (8 bytes)
}

const (
	// Magic number for frame validation
	FrameMagic = 0x4C4F5141 // "LOQA" in big-endian

	// Frame size constraints for ESP32 compatibility
	MaxFrameSize = 1536 // 1.5KB max frame size for ESP32 SRAM constraints
	HeaderSize   = 24   // Fixed header size
	MaxDataSize  = MaxFrameSize - HeaderSize

	// audioEndSize is the payload of an AudioEnd frame: sample rate and
	// sample count, both uint32
	audioEndSize = 8
)

// Serialize converts a frame to binary format
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", len(f.Data), MaxDataSize)
	}

	header := FrameHeader{
		Magic:     FrameMagic,
		Type:      f.Type,
		Flags:     f.Flags,
		Length:    uint16(len(f.Data)), //nolint:gosec // G115: bounded by MaxDataSize above
		SessionID: f.SessionID,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
	}

	buf := bytes.NewBuffer(make([]byte, 0, f.Size()))

	// Write header in big-endian format
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}

	if len(f.Data) > 0 {
		if _, err := buf.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write frame data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DeserializeFrame converts a single complete frame to a Frame
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too small: %d bytes (min %d)", len(data), HeaderSize)
	}

	header, err := parseFrameHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	expectedSize := HeaderSize + int(header.Length)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("frame size mismatch: got %d bytes, expected %d", len(data), expectedSize)
	}

	return newFrameFromHeader(header, data[HeaderSize:]), nil
}

// ReadFrame reads the next frame from r, header first, then data.
// io.EOF is returned unchanged when r ends cleanly between frames.
func ReadFrame(r io.Reader) (*Frame, error) {
	headerData := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerData); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	header, err := parseFrameHeader(headerData)
	if err != nil {
		return nil, err
	}

	var frameData []byte
	if header.Length > 0 {
		frameData = make([]byte, header.Length)
		if _, err := io.ReadFull(r, frameData); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
	}

	return newFrameFromHeader(header, frameData), nil
}

// parseFrameHeader parses just the header portion of frame data
func parseFrameHeader(headerData []byte) (*FrameHeader, error) {
	if len(headerData) != HeaderSize {
		return nil, fmt.Errorf("invalid header size: %d bytes (expected %d)", len(headerData), HeaderSize)
	}

	var header FrameHeader
	if err := binary.Read(bytes.NewReader(headerData), binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("invalid frame magic: 0x%08X (expected 0x%08X)", header.Magic, FrameMagic)
	}

	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", header.Length, MaxDataSize)
	}

	return &header, nil
}

func newFrameFromHeader(header *FrameHeader, data []byte) *Frame {
	frame := &Frame{
		Type:      header.Type,
		Flags:     header.Flags,
		SessionID: header.SessionID,
		Sequence:  header.Sequence,
		Timestamp: header.Timestamp,
	}
	if len(data) > 0 {
		frame.Data = append([]byte(nil), data...)
	}
	return frame
}

// NewFrame creates a new frame with the specified parameters
func NewFrame(frameType FrameType, flags FrameFlags, sessionID, sequence uint32, timestamp uint64, data []byte) *Frame {
	return &Frame{
		Type:      frameType,
		Flags:     flags,
		SessionID: sessionID,
		Sequence:  sequence,
		Timestamp: timestamp,
		Data:      data,
	}
}

// IsValid checks if the frame is structurally valid
func (f *Frame) IsValid() bool {
	return len(f.Data) <= MaxDataSize
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// EncodeAudioEnd builds the payload of an AudioEnd frame
func EncodeAudioEnd(sampleRate, samples uint32) []byte {
	data := make([]byte, audioEndSize)
	binary.BigEndian.PutUint32(data[0:4], sampleRate)
	binary.BigEndian.PutUint32(data[4:8], samples)
	return data
}

// DecodeAudioEnd parses the payload of an AudioEnd frame
func DecodeAudioEnd(data []byte) (sampleRate, samples uint32, err error) {
	if len(data) != audioEndSize {
		return 0, 0, fmt.Errorf("invalid audio end payload: %d bytes (expected %d)", len(data), audioEndSize)
	}
	return binary.BigEndian.Uint32(data[0:4]), binary.BigEndian.Uint32(data[4:8]), nil
}
