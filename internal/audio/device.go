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
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned when an input device cannot be acquired
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Device is the capability to open a capture stream on demand
type Device interface {
	// Acquire blocks until a stream is granted, acquisition fails, or ctx is done.
	// Failures match ErrDeviceUnavailable.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired capture stream. It emits encoded fragments in
// capture order until it is released or the device goes away, then closes
// the Fragments channel.
type Stream interface {
	Fragments() <-chan []byte

	// Release stops capture and frees the device. Fragments still buffered
	// by the device are delivered before the channel closes. Safe to call
	// more than once.
	Release() error
}
