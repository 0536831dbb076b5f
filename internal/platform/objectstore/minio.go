package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinIOClient builds a client on minio's default transport with tighter
// handshake and response-header timeouts.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("minio transport: %w", err)
	}
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.ResponseHeaderTimeout = 30 * time.Second

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}

// BucketClient is the subset of *minio.Client used to manage the backups
// bucket.
type BucketClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// EnsureBucket creates the backups bucket on first start.
func EnsureBucket(ctx context.Context, client BucketClient, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.BucketBackups)
	if err != nil {
		return fmt.Errorf("lookup bucket %s: %w", cfg.BucketBackups, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.BucketBackups, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", cfg.BucketBackups, err)
	}
	return nil
}

// CheckBucket backs the /readyz check.
func CheckBucket(ctx context.Context, client BucketClient, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.BucketBackups)
	if err != nil {
		return fmt.Errorf("lookup bucket %s: %w", cfg.BucketBackups, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", cfg.BucketBackups)
	}
	return nil
}
