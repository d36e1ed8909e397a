package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port, without scheme
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool

	CreateBucketIfNotExist bool
}

// Backend is a MinIO implementation of the simpleasset.BlobStore interface
type Backend struct {
	client *minio.Client
	bucket string
}

var _ simpleasset.BlobStore = (*Backend)(nil)

// New creates a new MinIO storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	b := &Backend{client: client, bucket: config.Bucket}
	if config.CreateBucketIfNotExist {
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	}
	return b, nil
}

func objectKey(locator string) string {
	return strings.TrimPrefix(locator, "/")
}

func (b *Backend) Write(ctx context.Context, locator string, r io.Reader) (int64, error) {
	info, err := b.client.PutObject(ctx, b.bucket, objectKey(locator), r, -1, minio.PutObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to put object: %w", err)
	}
	return info.Size, nil
}

func (b *Backend) Delete(ctx context.Context, locator string) (bool, error) {
	existed, err := b.Exists(ctx, locator)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	if err := b.client.RemoveObject(ctx, b.bucket, objectKey(locator), minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to remove object: %w", err)
	}
	return true, nil
}

func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, objectKey(locator), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object: %w", err)
}

func (b *Backend) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing object surfaces here.
	if ok, err := b.Exists(ctx, locator); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%s: %w", locator, simpleasset.ErrBlobNotFound)
	}
	obj, err := b.client.GetObject(ctx, b.bucket, objectKey(locator), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
