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

package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-ptt-go/internal/decode"
	"github.com/loqalabs/loqa-ptt-go/internal/metrics"
	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

// fakeDecoder records its input and returns a fixed buffer
type fakeDecoder struct {
	input []byte
	calls int
	buf   *pcm.DecodedBuffer
	err   error
}

func (f *fakeDecoder) Decode(_ context.Context, data []byte) (*pcm.DecodedBuffer, error) {
	f.calls++
	f.input = append([]byte(nil), data...)
	if f.err != nil {
		return nil, f.err
	}
	return f.buf, nil
}

// recordingSink stores every delivery
type recordingSink struct {
	deliveries []Delivery
	err        error
}

func (r *recordingSink) Deliver(_ context.Context, d Delivery) error {
	r.deliveries = append(r.deliveries, d)
	return r.err
}

func stereo(t *testing.T) *pcm.DecodedBuffer {
	t.Helper()
	buf, err := pcm.NewDecodedBuffer([][]float32{{1.0, 0.5}, {0.0, -0.5}}, 16000)
	require.NoError(t, err)
	return buf
}

func TestConcat(t *testing.T) {
	assert.Empty(t, concat(nil))
	assert.Equal(t, []byte{1, 2, 3, 4}, concat([][]byte{{1, 2}, {}, {3}, {4}}))
}

func TestTranscode_ConcatenatesInOrder(t *testing.T) {
	decoder := &fakeDecoder{buf: stereo(t)}
	p := New(decoder, &recordingSink{})

	_, err := p.Transcode(context.Background(), [][]byte{{1, 2}, {3}, {4, 5, 6}}, pcm.Little)
	require.NoError(t, err)

	assert.Equal(t, 1, decoder.calls)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, decoder.input)
}

func TestTranscode_ByteOrder(t *testing.T) {
	tests := []struct {
		name   string
		host   pcm.Endianness
		target pcm.Endianness
	}{
		{"little_to_little", pcm.Little, pcm.Little},
		{"little_to_big", pcm.Little, pcm.Big},
		{"big_to_little", pcm.Big, pcm.Little},
		{"big_to_big", pcm.Big, pcm.Big},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeDecoder{buf: stereo(t)}, &recordingSink{}, WithHostEndianness(tt.host))

			result, err := p.Transcode(context.Background(), [][]byte{{0}}, tt.target)
			require.NoError(t, err)

			assert.Equal(t, tt.target, result.Endianness)
			assert.Equal(t, 2, result.Samples)
			assert.Equal(t, 2, result.Channels)
			assert.Equal(t, 16000, result.SampleRate)
			require.Len(t, result.Payload, 8)

			// Means are 0.5 and 0.0 regardless of the route taken
			assert.Equal(t, []float32{0.5, 0}, pcm.DecodeFloat32(result.Payload, tt.target))
		})
	}
}

func TestTranscode_BigEndianBytes(t *testing.T) {
	p := New(&fakeDecoder{buf: stereo(t)}, &recordingSink{}, WithHostEndianness(pcm.Little))

	result, err := p.Transcode(context.Background(), [][]byte{{0}}, pcm.Big)
	require.NoError(t, err)

	bits := math.Float32bits(0.5)
	assert.Equal(t, []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}, result.Payload[:4])
}

func TestProcess_DeliversOnce(t *testing.T) {
	sink := &recordingSink{}
	p := New(&fakeDecoder{buf: stereo(t)}, sink)

	require.NoError(t, p.Process(context.Background(), [][]byte{{0}}, pcm.Big))

	require.Len(t, sink.deliveries, 1)
	d := sink.deliveries[0]
	assert.Equal(t, "audio", d.Name)
	assert.Equal(t, pcm.Big, d.Endianness)
	assert.Equal(t, 16000, d.SampleRate)
	assert.Equal(t, 2, d.Samples)
	assert.Len(t, d.Payload, 8)
}

func TestProcess_DecodeFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	sink := &recordingSink{}
	decoder := &fakeDecoder{err: decode.ErrDecodeFailed}

	err := New(decoder, sink, WithMetrics(m)).Process(context.Background(), [][]byte{{9}}, pcm.Little)

	assert.ErrorIs(t, err, decode.ErrDecodeFailed)
	assert.Empty(t, sink.deliveries, "nothing may be emitted after a decode failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures))
}

func TestProcess_DeliveryFailure(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	sinkErr := errors.New("hub unreachable")
	sink := &recordingSink{err: sinkErr}

	err := New(&fakeDecoder{buf: stereo(t)}, sink, WithMetrics(m)).Process(context.Background(), [][]byte{{0}}, pcm.Little)

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, sinkErr)
	assert.Len(t, sink.deliveries, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
}

func TestProcess_MonoSourceIsUnchanged(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.3}
	buf, err := pcm.NewDecodedBuffer([][]float32{samples}, 8000)
	require.NoError(t, err)

	var got Delivery
	sink := SinkFunc(func(_ context.Context, d Delivery) error {
		got = d
		return nil
	})

	require.NoError(t, New(&fakeDecoder{buf: buf}, sink).Process(context.Background(), [][]byte{{0}}, pcm.HostEndianness()))
	assert.Equal(t, samples, pcm.DecodeFloat32(got.Payload, pcm.HostEndianness()))
	assert.Equal(t, 8000, got.SampleRate)
}

func TestProcess_RealWAV(t *testing.T) {
	// 2 frames of stereo 16-bit: (16384, -16384), (16384, 16384)
	header := []byte{
		'R', 'I', 'F', 'F', 0xFF, 0xFF, 0xFF, 0xFF, 'W', 'A', 'V', 'E',
		'f', 'm', 't', ' ', 16, 0, 0, 0, 1, 0, 2, 0,
		0x80, 0x3E, 0, 0, 0x00, 0xFA, 0, 0, 4, 0, 16, 0,
		'd', 'a', 't', 'a', 0xFF, 0xFF, 0xFF, 0xFF,
	}
	fragments := [][]byte{
		header,
		{0x00, 0x40, 0x00, 0xC0},
		{0x00, 0x40, 0x00, 0x40},
	}

	sink := &recordingSink{}
	require.NoError(t, New(decode.NewAutoDecoder(), sink).Process(context.Background(), fragments, pcm.Little))

	require.Len(t, sink.deliveries, 1)
	assert.Equal(t, 16000, sink.deliveries[0].SampleRate)
	assert.Equal(t, []float32{0, 0.5}, pcm.DecodeFloat32(sink.deliveries[0].Payload, pcm.Little))
}
