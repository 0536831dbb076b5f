package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

var ErrStoreFailed = errors.New("object store failed")

// ObjectClient is the part of *minio.Client the backup store uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// BackupStore keeps the JSON snapshot of every delete run, written before
// the first row is deleted.
type BackupStore struct {
	client  ObjectClient
	bucket  string
	timeout time.Duration
}

type Backup struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

func NewBackupStore(client ObjectClient, cfg Config) (*BackupStore, error) {
	if client == nil {
		return nil, errors.New("object client is required")
	}
	if strings.TrimSpace(cfg.BucketBackups) == "" {
		return nil, errors.New("backups bucket is required")
	}
	return &BackupStore{client: client, bucket: cfg.BucketBackups, timeout: 2 * time.Minute}, nil
}

// BackupKey lays backups out as <spec>/<root id>/<run id>.json.
func BackupKey(spec string, rootID int64, runID string) string {
	return strings.TrimSpace(spec) + "/" + strconv.FormatInt(rootID, 10) + "/" + strings.TrimSpace(runID) + ".json"
}

func (s *BackupStore) Put(ctx context.Context, key string, data []byte) (Backup, error) {
	if strings.TrimSpace(key) == "" {
		return Backup{}, errors.New("backup key is required")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	putCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.PutObject(
		putCtx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "application/json",
			UserMetadata: map[string]string{"sha256": digest},
		},
	)
	if err != nil {
		return Backup{}, fmt.Errorf("%w: put %s: %s", ErrStoreFailed, key, err)
	}
	return Backup{Bucket: s.bucket, Key: key, SizeBytes: int64(len(data)), SHA256: digest}, nil
}

func (s *BackupStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %s", ErrStoreFailed, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", ErrStoreFailed, key, err)
	}
	return data, nil
}
