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

import "sync"

// ChunkBuffer accumulates encoded fragments in arrival order
type ChunkBuffer struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
}

// NewChunkBuffer creates an empty buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append stores a copy of fragment. Empty fragments are ignored and
// reported as not appended.
func (b *ChunkBuffer) Append(fragment []byte) bool {
	if len(fragment) == 0 {
		return false
	}
	stored := make([]byte, len(fragment))
	copy(stored, fragment)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, stored)
	b.size += len(stored)
	return true
}

// Len returns the number of buffered fragments
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Size returns the total number of buffered bytes
func (b *ChunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Fragments returns the buffered fragments in order. The outer slice is a
// snapshot; fragments themselves are never modified after Append.
func (b *ChunkBuffer) Fragments() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.fragments))
	copy(out, b.fragments)
	return out
}

// Reset discards all fragments
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = nil
	b.size = 0
}
