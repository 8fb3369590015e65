package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/config"
)

// S3Store holds oversized inline audio payloads in an S3-compatible object
// store so the prediction service can fetch them by URL.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	presignExpiry time.Duration
	log           zerolog.Logger
}

// UploadResult is the durable reference to an uploaded payload. Path is kept
// so the object can be cleaned up once the session is discarded.
type UploadResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// NewS3Store creates an audio blob store from config.
func NewS3Store(cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		presignExpiry: cfg.PresignExpiry,
		log:           log.With().Str("component", "blob-store").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (s *S3Store) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	return err
}

// Upload decodes a base64 audio payload (with or without a data-URI prefix),
// stores it under a collision-resistant name, and returns a fetchable URL.
// Retry policy lives in the caller; a failed upload is terminal here.
func (s *S3Store) Upload(ctx context.Context, base64Data, mimeType string) (*UploadResult, error) {
	data, err := decodePayload(base64Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}

	path := s.objectKey(objectName(mimeType))

	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &path,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object %q: %w", path, err)
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("s3 presign %q: %w", path, err)
	}

	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("audio payload uploaded")

	return &UploadResult{URL: req.URL, Path: path}, nil
}

// Delete removes an uploaded payload by its object path.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	})
	if err != nil {
		return fmt.Errorf("s3 delete object %q: %w", path, err)
	}
	return nil
}

func (s *S3Store) objectKey(name string) string {
	if s.prefix != "" {
		return s.prefix + "/" + name
	}
	return name
}
