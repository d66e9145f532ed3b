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
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
	"github.com/loqalabs/loqa-ptt-go/internal/pipeline"
)

const (
	uploadPuckPath = "/upload/puck"

	// DefaultUploadTimeout bounds a single upload request
	DefaultUploadTimeout = 30 * time.Second

	// audioChunkSize keeps every AudioData frame on a sample boundary
	audioChunkSize = MaxDataSize - MaxDataSize%pcm.SampleSize

	maxErrorBody = 512
)

// HTTPUploader posts finished recordings to the hub as a sequence of binary
// frames in a single request
type HTTPUploader struct {
	hubURL    string
	puckID    string
	sessionID string
	sequence  uint32
	timeout   time.Duration
	mutex     sync.Mutex

	client *http.Client
}

// NewHTTPUploader creates an uploader for the hub at hubURL
func NewHTTPUploader(hubURL, puckID string) *HTTPUploader {
	transport := &http.Transport{
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	return &HTTPUploader{
		hubURL:    strings.TrimRight(hubURL, "/"),
		puckID:    puckID,
		sessionID: generateSessionID(),
		timeout:   DefaultUploadTimeout,
		client: &http.Client{
			Transport: transport,
		},
	}
}

// SetTimeout sets the timeout applied to uploads started after the call.
// Zero or negative disables it.
func (u *HTTPUploader) SetTimeout(timeout time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	u.timeout = timeout
}

// Timeout returns the per-upload timeout
func (u *HTTPUploader) Timeout() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.timeout
}

// Deliver uploads one payload
func (u *HTTPUploader) Deliver(ctx context.Context, delivery pipeline.Delivery) error {
	uploadURL, err := u.uploadURL(delivery.Name)
	if err != nil {
		return err
	}

	body, frames, err := u.EncodeFrames(delivery)
	if err != nil {
		return err
	}

	if timeout := u.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Puck-ID", u.puckID)
	req.Header.Set("X-Session-ID", u.sessionID)
	req.Header.Set("X-Audio-Endianness", delivery.Endianness.String())
	req.Header.Set("X-Sample-Rate", strconv.Itoa(delivery.SampleRate))

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload audio: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("⚠️ Failed to close upload response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	log.Printf("📤 Uploaded %q to hub: %d frames (%d bytes)", delivery.Name, frames, len(body))
	return nil
}

// EncodeFrames renders a delivery as AudioData frames followed by one
// AudioEnd frame. It returns the request body and the number of frames.
func (u *HTTPUploader) EncodeFrames(delivery pipeline.Delivery) ([]byte, int, error) {
	if len(delivery.Payload)%pcm.SampleSize != 0 {
		return nil, 0, fmt.Errorf("payload of %d bytes is not whole samples", len(delivery.Payload))
	}

	var flags FrameFlags
	if delivery.Endianness == pcm.Big {
		flags |= FlagBigEndian
	}

	sessionHash := u.getSessionIDHash()
	body := new(bytes.Buffer)
	frames := 0

	write := func(frameType FrameType, data []byte) error {
		frame := NewFrame(frameType, flags, sessionHash, u.nextSequence(), timestampMicros(time.Now()), data)
		frameData, err := frame.Serialize()
		if err != nil {
			return fmt.Errorf("failed to serialize frame: %w", err)
		}
		body.Write(frameData)
		frames++
		return nil
	}

	payload := delivery.Payload
	for len(payload) > 0 {
		n := min(len(payload), audioChunkSize)
		if err := write(FrameTypeAudioData, payload[:n]); err != nil {
			return nil, 0, err
		}
		payload = payload[n:]
	}

	end := EncodeAudioEnd(uint32(delivery.SampleRate), uint32(delivery.Samples)) //nolint:gosec // G115: rates and counts are non-negative
	if err := write(FrameTypeAudioEnd, end); err != nil {
		return nil, 0, err
	}

	return body.Bytes(), frames, nil
}

func (u *HTTPUploader) uploadURL(name string) (string, error) {
	base, err := url.Parse(u.hubURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid hub URL: %q", u.hubURL)
	}

	base.Path = strings.TrimRight(base.Path, "/") + uploadPuckPath
	query := url.Values{}
	query.Set("puck_id", u.puckID)
	query.Set("name", name)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (u *HTTPUploader) nextSequence() uint32 {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	u.sequence++
	return u.sequence
}

// GetSessionID returns the uploader's session ID
func (u *HTTPUploader) GetSessionID() string {
	return u.sessionID
}

// getSessionIDHash returns a hash of the session ID for frame headers
func (u *HTTPUploader) getSessionIDHash() uint32 {
	hash := uint32(0)
	for _, b := range []byte(u.sessionID) {
		hash = hash*31 + uint32(b)
	}
	return hash
}

func timestampMicros(t time.Time) uint64 {
	micros := t.UnixMicro()
	if micros < 0 {
		return 0
	}
	return uint64(micros)
}

// generateSessionID creates a unique session identifier
func generateSessionID() string {
	now := time.Now()
	random := rand.Int63n(1000000) //nolint:gosec // G404: Non-cryptographic random OK for session ID
	return fmt.Sprintf("puck-%d-%d-%d", now.Unix(), now.Nanosecond(), random)
}
