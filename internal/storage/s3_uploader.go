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

package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/loqalabs/loqa-ptt-go/internal/pipeline"
)

const (
	keyTimeFormat = "20060102T150405.000Z"
	contentType   = "application/octet-stream"
)

// S3Config holds the bucket and credentials recordings are written to
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether enough settings are present to upload
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores each recording as one raw PCM object
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	puckID string
	now    func() time.Time
}

// NewS3Uploader creates an uploader with an S3 client built from cfg
func NewS3Uploader(cfg *S3Config, puckID string) (*S3Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("S3 is not configured")
	}
	return NewS3UploaderWithClient(createS3Client(cfg), cfg.Bucket, cfg.Prefix, puckID), nil
}

// NewS3UploaderWithClient creates an uploader over an existing client (for testing)
func NewS3UploaderWithClient(client PutObjectAPI, bucket, prefix, puckID string) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		puckID: puckID,
		now:    time.Now,
	}
}

// createS3Client creates an S3 client with the given configuration
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// ObjectKey returns the key a delivery made at t is stored under
func (u *S3Uploader) ObjectKey(name string, t time.Time) string {
	file := fmt.Sprintf("%s-%s.pcm", t.UTC().Format(keyTimeFormat), name)
	return path.Join(u.prefix, u.puckID, file)
}

// Deliver uploads one payload
func (u *S3Uploader) Deliver(ctx context.Context, delivery pipeline.Delivery) error {
	key := u.ObjectKey(delivery.Name, u.now())

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(delivery.Payload),
		ContentLength: aws.Int64(int64(len(delivery.Payload))),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"puck-id":     u.puckID,
			"endianness":  delivery.Endianness.String(),
			"sample-rate": strconv.Itoa(delivery.SampleRate),
			"samples":     strconv.Itoa(delivery.Samples),
			"format":      "pcm_f32",
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	log.Printf("📤 Stored %q at s3://%s/%s (%d bytes)", delivery.Name, u.bucket, key, len(delivery.Payload))
	return nil
}
