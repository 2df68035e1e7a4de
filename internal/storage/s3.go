package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

// baseBackoff is the wait before the first retry; it doubles per attempt.
const baseBackoff = 100 * time.Millisecond

// S3Storage implements ObjectStorage on an S3 bucket. Objects are the
// results database of each run and the hash map snapshot, both written
// whole, so plain PutObject/GetObject are enough.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region of the bucket.
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// MaxRetries bounds retries of transient failures. Defaults to 3.
	MaxRetries int
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// NewS3Storage creates an S3 client using the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, sderrors.Wrap(sderrors.ErrCategoryConfig, sderrors.CodeInvalidConfig, "load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultS3Config().MaxRetries
	}
	return &S3Storage{client: client, bucket: bucket, maxRetries: retries}
}

// Bucket returns the bucket name.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

// Upload puts the local file at objectPath. The file is rewound before
// every attempt.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return uploadError(objectPath, err)
	}
	defer file.Close()

	err = s.withRetry(ctx, func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
			Body:   file,
		})
		return err
	})
	if err != nil {
		return uploadError(objectPath, err)
	}
	return nil
}

// Download writes objectPath to localPath.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	var body io.ReadCloser
	err := s.withRetry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return s.classify(objectPath, err)
		}
		body = out.Body
		return nil
	})
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return err
	case err != nil:
		return downloadError(objectPath, err)
	}
	defer body.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return downloadError(objectPath, err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		return downloadError(objectPath, err)
	}
	if err := file.Close(); err != nil {
		return downloadError(objectPath, err)
	}
	return nil
}

// Delete removes objectPath. S3 reports success for missing keys.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return err
	})
	if err != nil {
		return deleteError(objectPath, err)
	}
	return nil
}

// Exists reports whether objectPath is present, using HeadObject.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return s.classify(objectPath, err)
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, downloadError(objectPath, err)
	}
}

// classify turns S3 missing-key errors into ErrObjectNotFound.
func (s *S3Storage) classify(objectPath string, err error) error {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return notFoundError(objectPath)
	}
	return err
}

// withRetry runs op up to maxRetries+1 times, doubling the wait between
// attempts. Missing objects are returned at once.
func (s *S3Storage) withRetry(ctx context.Context, op func() error) error {
	wait := baseBackoff
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = op()
		if err == nil || errors.Is(err, ErrObjectNotFound) || attempt == s.maxRetries {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}
