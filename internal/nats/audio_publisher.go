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

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-ptt-go/internal/pipeline"
)

const (
	// AudioFormatPCMFloat32 names mono IEEE-754 float32 samples
	AudioFormatPCMFloat32 = "pcm_f32"

	connectAttempts   = 5
	connectRetryDelay = 2 * time.Second
)

// AudioUploadMessage represents a finished recording from puck to hub
type AudioUploadMessage struct {
	PuckID      string `json:"puck_id"`      // Puck that captured the audio
	Name        string `json:"name"`         // Payload name, always "audio"
	AudioData   []byte `json:"audio_data"`   // Mono float32 samples
	AudioFormat string `json:"audio_format"` // Sample format of AudioData
	Endianness  string `json:"endianness"`   // "little" or "big"
	SampleRate  int    `json:"sample_rate"`  // Sample rate for audio data
	Samples     int    `json:"samples"`      // Number of samples in AudioData
	Timestamp   int64  `json:"timestamp"`    // Unix milliseconds at publish time
}

// PuckNATSConnection interface for dependency injection
type PuckNATSConnection interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// PuckNATSConnectionAdapter adapts *nats.Conn to PuckNATSConnection interface
type PuckNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewPuckNATSConnectionAdapter(conn *nats.Conn) *PuckNATSConnectionAdapter {
	return &PuckNATSConnectionAdapter{conn: conn}
}

func (r *PuckNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return r.conn.Publish(subject, data)
}

func (r *PuckNATSConnectionAdapter) FlushWithContext(ctx context.Context) error {
	return r.conn.FlushWithContext(ctx)
}

func (r *PuckNATSConnectionAdapter) Close() {
	r.conn.Close()
}

// AudioPublisher publishes finished recordings on NATS
type AudioPublisher struct {
	natsConn PuckNATSConnection
	puckID   string
}

// NewAudioPublisher connects to NATS and creates a publisher
func NewAudioPublisher(natsURL, puckID string) (*AudioPublisher, error) {
	// Connect to NATS with retry
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-ptt-"+puckID))
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/%d): %v", i+1, connectAttempts, err)
		if i < connectAttempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)

	return NewAudioPublisherWithConnection(NewPuckNATSConnectionAdapter(nc), puckID), nil
}

// NewAudioPublisherWithConnection creates a publisher over an existing connection (for testing)
func NewAudioPublisherWithConnection(natsConn PuckNATSConnection, puckID string) *AudioPublisher {
	return &AudioPublisher{
		natsConn: natsConn,
		puckID:   puckID,
	}
}

// Subject returns the subject recordings are published on
func (ap *AudioPublisher) Subject() string {
	return fmt.Sprintf("audio.upload.%s", ap.puckID)
}

// Deliver publishes one payload and waits for the server to acknowledge it
func (ap *AudioPublisher) Deliver(ctx context.Context, delivery pipeline.Delivery) error {
	msg := AudioUploadMessage{
		PuckID:      ap.puckID,
		Name:        delivery.Name,
		AudioData:   delivery.Payload,
		AudioFormat: AudioFormatPCMFloat32,
		Endianness:  delivery.Endianness.String(),
		SampleRate:  delivery.SampleRate,
		Samples:     delivery.Samples,
		Timestamp:   time.Now().UnixMilli(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal audio upload message: %w", err)
	}

	subject := ap.Subject()
	if err := ap.natsConn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	if err := ap.natsConn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	log.Printf("📤 Published %q on %s: %d samples (%d bytes)", delivery.Name, subject, delivery.Samples, len(data))
	return nil
}

// Close closes the NATS connection
func (ap *AudioPublisher) Close() {
	if ap.natsConn != nil {
		ap.natsConn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
