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

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkBuffer(t *testing.T) {
	b := NewChunkBuffer()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Fragments())

	assert.True(t, b.Append([]byte{1, 2}))
	assert.False(t, b.Append(nil))
	assert.False(t, b.Append([]byte{}))
	assert.True(t, b.Append([]byte{3}))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, [][]byte{{1, 2}, {3}}, b.Fragments())

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Size())
	assert.Empty(t, b.Fragments())
}

func TestChunkBuffer_SnapshotIsIndependent(t *testing.T) {
	b := NewChunkBuffer()
	b.Append([]byte{1})

	snapshot := b.Fragments()
	b.Append([]byte{2})
	b.Reset()

	assert.Equal(t, [][]byte{{1}}, snapshot)
}

func TestChunkBuffer_ConcurrentAppend(t *testing.T) {
	b := NewChunkBuffer()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Append([]byte{0, 0})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Len())
	assert.Equal(t, 200, b.Size())
}
