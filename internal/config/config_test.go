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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "loqa-puck-001", cfg.PuckID)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, SinkHTTP, cfg.Sink.Kind)
	assert.Equal(t, "http://localhost:3000", cfg.Sink.HTTP.HubURL)
	assert.Equal(t, "nats://localhost:4222", cfg.Sink.NATS.URL)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, pcm.HostEndianness(), cfg.Endianness())
	assert.Equal(t, 250*time.Millisecond, cfg.FragmentInterval())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
puck_id: kitchen
audio:
  sample_rate: 48000
  channels: 2
  target_endianness: big
sink:
  kind: nats
  nats:
    url: nats://hub.local:4222
metrics:
  enabled: true
  address: 127.0.0.1:9200
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kitchen", cfg.PuckID)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, 1024, cfg.Audio.FramesPerBuffer, "unset fields keep their defaults")
	assert.Equal(t, pcm.Big, cfg.Endianness())
	assert.Equal(t, SinkNATS, cfg.Sink.Kind)
	assert.Equal(t, "nats://hub.local:4222", cfg.Sink.NATS.URL)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_S3CredentialsFromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")

	path := writeConfig(t, `
sink:
  kind: s3
  s3:
    bucket: recordings
    access_key_id: file-key
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Sink.S3.AccessKeyID, "file values win")
	assert.Equal(t, "env-secret", cfg.Sink.S3.SecretAccessKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad_yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "audio: [unterminated"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid_values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "audio:\n  channels: 0\n"))
		assert.ErrorContains(t, err, "config validation failed")
		assert.ErrorContains(t, err, "Channels")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing_puck_id", func(c *Config) { c.PuckID = "" }, "PuckID is required"},
		{"puck_id_with_wildcard", func(c *Config) { c.PuckID = "a.*" }, "PuckID must not contain"},
		{"sample_rate_too_low", func(c *Config) { c.Audio.SampleRate = 100 }, "SampleRate must be greater than or equal to 8000"},
		{"too_many_channels", func(c *Config) { c.Audio.Channels = 9 }, "Channels must be less than or equal to 8"},
		{"fragment_interval", func(c *Config) { c.Audio.FragmentIntervalMS = 1 }, "FragmentIntervalMS"},
		{"bad_endianness", func(c *Config) { c.Audio.TargetEndianness = "middle" }, "TargetEndianness must be little, big"},
		{"short_endianness", func(c *Config) { c.Audio.TargetEndianness = "BE" }, ""},
		{"unknown_sink", func(c *Config) { c.Sink.Kind = "ftp" }, "Kind must be one of: http nats s3"},
		{"http_bad_url", func(c *Config) { c.Sink.HTTP.HubURL = "not a url" }, "HubURL must be a valid URL"},
		{"nats_missing_url", func(c *Config) { c.Sink.Kind = SinkNATS; c.Sink.NATS.URL = "" }, "sink nats"},
		{"s3_missing_bucket", func(c *Config) {
			c.Sink.Kind = SinkS3
			c.Sink.S3 = S3SinkConfig{AccessKeyID: "k", SecretAccessKey: "s"}
		}, "Bucket is required"},
		{"s3_complete", func(c *Config) {
			c.Sink.Kind = SinkS3
			c.Sink.S3 = S3SinkConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "http://minio:9000"}
		}, ""},
		{"unselected_sink_ignored", func(c *Config) { c.Sink.S3 = S3SinkConfig{Endpoint: "::"} }, ""},
		{"metrics_without_address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, "Address is required"},
		{"metrics_bad_address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "9100" }, "metrics address"},
		{"metrics_disabled_any_address", func(c *Config) { c.Metrics.Address = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEndianness(t *testing.T) {
	cfg := Defaults()

	cfg.Audio.TargetEndianness = "little"
	assert.Equal(t, pcm.Little, cfg.Endianness())

	cfg.Audio.TargetEndianness = "big"
	assert.Equal(t, pcm.Big, cfg.Endianness())

	cfg.Audio.TargetEndianness = ""
	assert.Equal(t, pcm.HostEndianness(), cfg.Endianness())
}
