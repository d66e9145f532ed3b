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

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loqalabs/loqa-ptt-go/internal/audio"
	"github.com/loqalabs/loqa-ptt-go/internal/capture"
	"github.com/loqalabs/loqa-ptt-go/internal/config"
	"github.com/loqalabs/loqa-ptt-go/internal/decode"
	"github.com/loqalabs/loqa-ptt-go/internal/metrics"
	"github.com/loqalabs/loqa-ptt-go/internal/nats"
	"github.com/loqalabs/loqa-ptt-go/internal/pcm"
	"github.com/loqalabs/loqa-ptt-go/internal/pipeline"
	"github.com/loqalabs/loqa-ptt-go/internal/storage"
	"github.com/loqalabs/loqa-ptt-go/internal/transport"
)

// stopTimeout bounds decoding and upload of one recording
const stopTimeout = 60 * time.Second

// overrides holds command line values that replace configuration entries
type overrides struct {
	puckID     string
	hubURL     string
	natsURL    string
	sinkKind   string
	endianness string
}

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to YAML configuration file")
	puckID := flag.String("id", "", "Puck identifier (default \"loqa-puck-001\")")
	hubAddr := flag.String("hub", "", "Hub HTTP address (default \"http://localhost:3000\")")
	natsURL := flag.String("nats", "", "NATS server URL (default \"nats://localhost:4222\")")
	sinkKind := flag.String("sink", "", "Upload sink: http, nats or s3 (default \"http\")")
	endianness := flag.String("endianness", "", "Payload byte order: little or big (default host order)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, overrides{
		puckID:     *puckID,
		hubURL:     *hubAddr,
		natsURL:    *natsURL,
		sinkKind:   *sinkKind,
		endianness: *endianness,
	})
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	log.Printf("🚀 Starting Loqa Push-to-Talk")
	log.Printf("📋 Puck ID: %s", cfg.PuckID)
	log.Printf("📤 Upload sink: %s", cfg.Sink.Kind)
	log.Printf("🔢 Payload byte order: %s", cfg.Endianness())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(reg)
		server := serveMetrics(cfg.Metrics.Address, reg)
		defer func() {
			if err := server.Close(); err != nil {
				log.Printf("⚠️ Failed to close metrics server: %v", err)
			}
		}()
	}

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize %s sink: %v", cfg.Sink.Kind, err)
	}
	defer closeSink()

	device := audio.NewBackendDevice(audio.NewPortAudioBackend(), audio.StreamParams{
		SampleRate: float64(cfg.Audio.SampleRate),
		Channels:   cfg.Audio.Channels,
		BufferSize: cfg.Audio.FramesPerBuffer,
	}, cfg.FragmentInterval())

	session := capture.New(device,
		pipeline.New(decode.NewAutoDecoder(), sink, pipeline.WithMetrics(m)),
		capture.WithDefaultEndianness(cfg.Endianness()),
		capture.WithMetrics(m),
	)

	// Display status
	fmt.Println()
	fmt.Println("🎤 Loqa Push-to-Talk Active!")
	fmt.Println("============================")
	fmt.Println()
	fmt.Println("⏎  Enter: start / stop recording")
	fmt.Println("⌨️  Commands: start [little|big], stop, quit")
	fmt.Println("⏹️  Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runLoop(context.Background(), session, readLines(os.Stdin), sigChan)

	log.Println("👋 Push-to-talk stopped")
}

// loadConfig reads the configuration file and applies command line overrides
func loadConfig(path string, o overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if o.puckID != "" {
		cfg.PuckID = o.puckID
	}
	if o.hubURL != "" {
		cfg.Sink.HTTP.HubURL = o.hubURL
	}
	if o.natsURL != "" {
		cfg.Sink.NATS.URL = o.natsURL
	}
	if o.sinkKind != "" {
		cfg.Sink.Kind = o.sinkKind
	}
	if o.endianness != "" {
		cfg.Audio.TargetEndianness = o.endianness
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command line options: %w", err)
	}
	return cfg, nil
}

// buildSink creates the configured upload sink and its cleanup function
func buildSink(cfg *config.Config) (pipeline.Sink, func(), error) {
	switch cfg.Sink.Kind {
	case config.SinkHTTP:
		uploader := transport.NewHTTPUploader(cfg.Sink.HTTP.HubURL, cfg.PuckID)
		uploader.SetTimeout(time.Duration(cfg.Sink.HTTP.TimeoutSeconds) * time.Second)
		log.Printf("🎯 Hub Address: %s", cfg.Sink.HTTP.HubURL)
		return uploader, func() {}, nil

	case config.SinkNATS:
		log.Printf("📨 NATS URL: %s", cfg.Sink.NATS.URL)
		publisher, err := nats.NewAudioPublisher(cfg.Sink.NATS.URL, cfg.PuckID)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil

	case config.SinkS3:
		s3cfg := cfg.Sink.S3
		uploader, err := storage.NewS3Uploader(&storage.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
		}, cfg.PuckID)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("🪣 S3 bucket: %s", s3cfg.Bucket)
		return uploader, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ Metrics server failed: %v", err)
		}
	}()
	return server
}

// commandKind is a push-to-talk signal typed on stdin
type commandKind int

const (
	cmdToggle commandKind = iota
	cmdStart
	cmdStop
	cmdQuit
)

type command struct {
	kind       commandKind
	endianness *pcm.Endianness
}

// parseCommand interprets one stdin line. An empty line toggles recording.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdToggle}, nil
	}

	switch fields[0] {
	case "start":
		cmd := command{kind: cmdStart}
		if len(fields) > 2 {
			return command{}, fmt.Errorf("usage: start [little|big]")
		}
		if len(fields) == 2 {
			e, err := pcm.ParseEndianness(fields[1])
			if err != nil {
				return command{}, err
			}
			cmd.endianness = &e
		}
		return cmd, nil
	case "stop":
		return command{kind: cmdStop}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// recorder is the part of capture.Session driven by the command loop
type recorder interface {
	Start(ctx context.Context, opts ...capture.StartOption) error
	Stop(ctx context.Context) error
	State() capture.State
}

// handleCommand applies cmd to rec and reports whether the loop should exit
func handleCommand(ctx context.Context, rec recorder, cmd command) bool {
	switch cmd.kind {
	case cmdToggle:
		if rec.State() == capture.Idle {
			startRecording(ctx, rec, nil)
		} else {
			stopRecording(ctx, rec)
		}
	case cmdStart:
		startRecording(ctx, rec, cmd.endianness)
	case cmdStop:
		stopRecording(ctx, rec)
	case cmdQuit:
		stopRecording(ctx, rec)
		return true
	}
	return false
}

func startRecording(ctx context.Context, rec recorder, endianness *pcm.Endianness) {
	var opts []capture.StartOption
	if endianness != nil {
		opts = append(opts, capture.WithTargetEndianness(*endianness))
	}
	if err := rec.Start(ctx, opts...); err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			log.Printf("❌ Microphone unavailable, try again: %v", err)
			return
		}
		log.Printf("❌ Failed to start recording: %v", err)
	}
}

func stopRecording(ctx context.Context, rec recorder) {
	if rec.State() != capture.Recording {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := rec.Stop(stopCtx); err != nil {
		log.Printf("❌ Recording was not delivered: %v", err)
	}
}

// runLoop drives rec from stdin lines until quit, end of input or a signal.
// An active recording is finalized before returning.
func runLoop(ctx context.Context, rec recorder, lines <-chan string, signals <-chan os.Signal) {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				log.Println("🛑 Input closed, shutting down...")
				stopRecording(ctx, rec)
				return
			}
			cmd, err := parseCommand(line)
			if err != nil {
				log.Printf("⚠️ %v", err)
				continue
			}
			if handleCommand(ctx, rec, cmd) {
				log.Println("🛑 Shutting down push-to-talk...")
				return
			}

		case sig := <-signals:
			log.Printf("🛑 Received %s, shutting down push-to-talk...", sig)
			stopRecording(ctx, rec)
			return
		}
	}
}

// readLines streams lines from r until it ends
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("⚠️ Failed to read input: %v", err)
		}
	}()
	return lines
}
