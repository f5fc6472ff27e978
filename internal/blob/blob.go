// Package blob is the byte-addressed object store used for source videos,
// thumbnails, sidecars, and enrollment photos: an aws-sdk-go-v2 S3 client
// behind a small interface so tests can substitute an in-memory fake.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/videoindex/core/internal/apperr"
	"github.com/videoindex/core/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the seam the pipeline, API, and face-enrollment worker code
// against, so a fake can stand in for tests without a real bucket.
type Store interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// S3Store is the concrete aws-sdk-go-v2 adapter, bucket-scoped per call site
// (uploads, thumbnails, sidecars each get their own S3Store instance backed
// by their configured bucket).
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds an S3-compatible client from config.Blob, targeting bucket.
// ForcePathStyle accommodates MinIO/localstack-style endpoints used in
// development.
func New(ctx context.Context, cfg config.Blob, bucket string) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

// PresignPut returns a presigned URL the upload-init caller's client PUTs
// the raw video bytes to directly.
func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.Wrap(apperr.ClassTransientDependency, "presign put", err)
	}
	return req.URL, nil
}

// PresignGet returns a presigned URL for direct client download. No code
// path in this repository calls it; the pipeline and the enrollment worker
// read objects with Download.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.Wrap(apperr.ClassTransientDependency, "presign get", err)
	}
	return req.URL, nil
}

// Upload writes body to key via the multipart manager.Uploader, used by the
// pipeline for thumbnails and sidecars (sizes small enough that multipart
// adds nothing, but it keeps one upload code path for every blob size).
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperr.Wrap(apperr.ClassTransientDependency, "upload object", err)
	}
	return nil
}

// Download reads the full object into memory, used for enrollment photos
// and for pulling the source video into pipeline scratch space.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassTransientDependency, "get object", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, apperr.Wrap(apperr.ClassTransientDependency, "read object body", err)
	}
	return buf.Bytes(), nil
}

// Delete removes an object. Deleting a video through the API changes only
// its state; it does not call Delete on the stored objects.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperr.Wrap(apperr.ClassTransientDependency, "delete object", err)
	}
	return nil
}
