// Package storage stores material files in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/config"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// ErrDisabled is returned by every operation when no bucket is configured.
var ErrDisabled = errors.New("object storage is not configured; set S3_BUCKET and credentials to enable materials")

// S3Storage handles uploads, signed downloads and deletes.
type S3Storage struct {
	bucket   string
	client   *s3.Client
	presign  *s3.PresignClient
	log      *logger.Logger
	disabled bool
}

// NewS3Storage builds a client from configuration. Missing bucket or
// credentials yield a disabled storage rather than an error.
func NewS3Storage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*S3Storage, error) {
	log = log.With(zap.String("component", "s3-storage"))
	storage := &S3Storage{
		bucket: strings.TrimSpace(cfg.S3Bucket),
		log:    log,
	}

	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := strings.TrimSpace(cfg.S3SecretAccessKey)
	if storage.bucket == "" || accessKey == "" || secretKey == "" {
		log.Warn("S3_BUCKET or credentials are not set; material uploads are disabled")
		storage.disabled = true
		return storage, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	storage.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	storage.presign = s3.NewPresignClient(storage.client)

	return storage, nil
}

// Disabled reports whether the storage has no backend.
func (s *S3Storage) Disabled() bool {
	return s.disabled
}

// Upload writes an object.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.disabled {
		return ErrDisabled
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a download URL for key valid for ttl.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.disabled {
		return "", ErrDisabled
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes an object. Deleting a missing key succeeds.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if s.disabled {
		return ErrDisabled
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Health checks that the bucket is reachable. A disabled storage is healthy.
func (s *S3Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
