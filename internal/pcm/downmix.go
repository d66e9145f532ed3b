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

// Downmix averages every channel of buf into a single mono channel.
// Output length always equals buf.Len(); a single channel is copied through.
func Downmix(buf *DecodedBuffer) MonoBuffer {
	length := buf.Len()
	mono := MonoBuffer{
		Samples:    make([]float32, length),
		SampleRate: buf.SampleRate,
	}

	numChannels := buf.NumChannels()
	switch numChannels {
	case 0:
		return mono
	case 1:
		copy(mono.Samples, buf.Channels[0])
		return mono
	}

	// Accumulate in float64 so wide layouts don't lose precision
	for i := 0; i < length; i++ {
		var sum float64
		for c := 0; c < numChannels; c++ {
			sum += float64(buf.Channels[c][i])
		}
		mono.Samples[i] = float32(sum / float64(numChannels))
	}

	return mono
}
