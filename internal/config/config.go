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
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
)

// Sink kinds
const (
	SinkHTTP = "http"
	SinkNATS = "nats"
	SinkS3   = "s3"
)

// Config represents the complete push-to-talk configuration
type Config struct {
	PuckID  string        `yaml:"puck_id" validate:"required,max=64,excludesall=.*> "`
	Audio   AudioConfig   `yaml:"audio"`
	Sink    SinkConfig    `yaml:"sink"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate         int    `yaml:"sample_rate" validate:"gte=8000,lte=192000"`
	Channels           int    `yaml:"channels" validate:"gte=1,lte=8"`
	FramesPerBuffer    int    `yaml:"frames_per_buffer" validate:"gte=16,lte=16384"`
	FragmentIntervalMS int    `yaml:"fragment_interval_ms" validate:"gte=10,lte=10000"`
	TargetEndianness   string `yaml:"target_endianness" validate:"endianness"` // empty means host order
}

// SinkConfig selects where finished recordings go. Only the section named
// by Kind is validated.
type SinkConfig struct {
	Kind string         `yaml:"kind" validate:"oneof=http nats s3"`
	HTTP HTTPSinkConfig `yaml:"http" validate:"-"`
	NATS NATSSinkConfig `yaml:"nats" validate:"-"`
	S3   S3SinkConfig   `yaml:"s3" validate:"-"`
}

// HTTPSinkConfig contains hub upload settings
type HTTPSinkConfig struct {
	HubURL         string `yaml:"hub_url" validate:"required,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1,lte=600"`
}

// NATSSinkConfig contains NATS publish settings
type NATSSinkConfig struct {
	URL string `yaml:"url" validate:"required,url"`
}

// S3SinkConfig contains object storage settings
type S3SinkConfig struct {
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket" validate:"required"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" validate:"required"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required"`
}

// MetricsConfig contains Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" validate:"required_if=Enabled true"`
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("endianness", func(fl validator.FieldLevel) bool {
		_, err := pcm.ParseEndianness(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
}

// Defaults returns the configuration used when no file is given
func Defaults() *Config {
	return &Config{
		PuckID: "loqa-puck-001",
		Audio: AudioConfig{
			SampleRate:         16000,
			Channels:           1,
			FramesPerBuffer:    1024,
			FragmentIntervalMS: 250,
		},
		Sink: SinkConfig{
			Kind: SinkHTTP,
			HTTP: HTTPSinkConfig{
				HubURL:         "http://localhost:3000",
				TimeoutSeconds: 30,
			},
			NATS: NATSSinkConfig{
				URL: "nats://localhost:4222",
			},
		},
		Metrics: MetricsConfig{
			Address: ":9100",
		},
	}
}

// Load reads and parses the configuration file on top of Defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv fills S3 credentials from the standard AWS variables when the
// file leaves them empty
func (c *Config) applyEnv() {
	if c.Sink.S3.AccessKeyID == "" {
		c.Sink.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.Sink.S3.SecretAccessKey == "" {
		c.Sink.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
}

// Validate checks the configuration, including the selected sink section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}

	var sink any
	switch c.Sink.Kind {
	case SinkHTTP:
		sink = &c.Sink.HTTP
	case SinkNATS:
		sink = &c.Sink.NATS
	case SinkS3:
		sink = &c.Sink.S3
	}
	if err := validate.Struct(sink); err != nil {
		return fmt.Errorf("sink %s: %w", c.Sink.Kind, describe(err))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return fmt.Errorf("metrics address %q: %w", c.Metrics.Address, err)
		}
	}

	return nil
}

// Endianness returns the configured payload byte order
func (c *Config) Endianness() pcm.Endianness {
	// Validate has already rejected anything ParseEndianness cannot read
	e, err := pcm.ParseEndianness(c.Audio.TargetEndianness)
	if err != nil {
		return pcm.HostEndianness()
	}
	return e
}

// FragmentInterval returns the device delivery interval
func (c *Config) FragmentInterval() time.Duration {
	return time.Duration(c.Audio.FragmentIntervalMS) * time.Millisecond
}

// describe flattens validator errors into one readable error
func describe(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := make([]error, 0, len(validationErrors))
	for _, e := range validationErrors {
		errs = append(errs, fmt.Errorf("%s %s", e.Namespace(), formatValidationMessage(e)))
	}
	return errors.Join(errs...)
}

// formatValidationMessage creates a human-readable message from a validator error
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "endianness":
		return "must be little, big, or empty for the host order"
	case "excludesall":
		return "must not contain dots, wildcards or spaces"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
