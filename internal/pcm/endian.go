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
	"encoding/binary"
	"fmt"
	"strings"
)

// Endianness identifies the byte order of multi-byte samples
type Endianness uint8

const (
	Little Endianness = iota
	Big
)

// String returns the wire name of the byte order ("little" or "big")
func (e Endianness) String() string {
	switch e {
	case Little:
		return "little"
	case Big:
		return "big"
	default:
		return fmt.Sprintf("endianness(%d)", uint8(e))
	}
}

// ByteOrder returns the encoding/binary order matching e
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseEndianness parses "little" or "big" (case-insensitive).
// An empty string resolves to the host's own order.
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return HostEndianness(), nil
	case "little", "le":
		return Little, nil
	case "big", "be":
		return Big, nil
	default:
		return Little, fmt.Errorf("unknown endianness %q (expected \"little\" or \"big\")", s)
	}
}

var hostEndianness = detectHostEndianness()

// HostEndianness returns the native byte order of the running process
func HostEndianness() Endianness {
	return hostEndianness
}

// detectHostEndianness lays out the 16-bit value 1 in native order and
// checks which byte holds it.
func detectHostEndianness() Endianness {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return Little
	}
	return Big
}

// Convert reinterprets a buffer of 4-byte samples from one byte order to
// another. When from == to the input slice is returned as is; otherwise a
// new slice is returned and buf is left untouched.
//
// len(buf) must be a multiple of 4. Anything else is a caller bug and panics.
func Convert(buf []byte, from, to Endianness) []byte {
	if len(buf)%SampleSize != 0 {
		panic(fmt.Sprintf("pcm: buffer length %d is not a multiple of %d", len(buf), SampleSize))
	}

	if from == to {
		return buf
	}

	out := make([]byte, len(buf))
	for i := 0; i < len(buf); i += SampleSize {
		out[i] = buf[i+3]
		out[i+1] = buf[i+2]
		out[i+2] = buf[i+1]
		out[i+3] = buf[i]
	}
	return out
}
