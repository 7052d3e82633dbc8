package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Configuration errors.
var (
	ErrMissingBucket      = errors.New("bucket name is required")
	ErrMissingCredentials = errors.New("access key ID and secret access key are required")
)

// DefaultURLExpiry is the lifetime of presigned download URLs.
const DefaultURLExpiry = 15 * time.Minute

// S3Config holds configuration for the S3 sink.
type S3Config struct {
	Bucket          string
	Region          string // Default: "auto"
	Endpoint        string // Optional; set for R2, MinIO and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix, e.g. "decks"
	URLExpiry       time.Duration
}

// putObjectAPI is the subset of the S3 client used for uploads.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads documents as JSON objects.
type S3Sink struct {
	client        putObjectAPI
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	urlExpiry     time.Duration
	timeNow       func() time.Time // For testability
}

// NewS3Sink creates a sink with a static-credential S3 client.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		// S3-compatible stores expect path-style addressing
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)

	return &S3Sink{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		urlExpiry:     cfg.URLExpiry,
		timeNow:       time.Now,
	}, nil
}

// ObjectKey returns the key for a document generated at t.
// Pattern: {prefix}/decks-YYYYMMDDTHHMMSSZ.json
func (s *S3Sink) ObjectKey(t time.Time) string {
	name := fmt.Sprintf("decks-%s.json", t.UTC().Format("20060102T150405Z"))
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Write uploads doc and returns its s3:// location.
func (s *S3Sink) Write(ctx context.Context, doc Document) (string, error) {
	var buf bytes.Buffer
	if err := encode(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to encode decks: %w", err)
	}

	stamp := doc.GeneratedAt
	if stamp.IsZero() {
		stamp = s.timeNow()
	}
	key := s.ObjectKey(stamp)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// PresignGet returns a time-limited download URL for key.
func (s *S3Sink) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, s.timeNow().Add(s.urlExpiry), nil
}
