package objectstore

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/animus-labs/cascade/internal/platform/env"
)

// Config locates the MinIO (or S3-compatible) bucket holding pre-delete
// snapshots.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketBackups string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("CASCADE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      strings.TrimSpace(env.String("CASCADE_MINIO_ENDPOINT", "localhost:9000")),
		AccessKey:     env.String("CASCADE_MINIO_ACCESS_KEY", "cascade"),
		SecretKey:     env.String("CASCADE_MINIO_SECRET_KEY", "cascademinio"),
		Region:        strings.TrimSpace(env.String("CASCADE_MINIO_REGION", "us-east-1")),
		UseSSL:        useSSL,
		BucketBackups: strings.TrimSpace(env.String("CASCADE_MINIO_BUCKET_BACKUPS", "cascade-backups")),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"CASCADE_MINIO_ENDPOINT":       c.Endpoint,
		"CASCADE_MINIO_ACCESS_KEY":     c.AccessKey,
		"CASCADE_MINIO_SECRET_KEY":     c.SecretKey,
		"CASCADE_MINIO_REGION":         c.Region,
		"CASCADE_MINIO_BUCKET_BACKUPS": c.BucketBackups,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("object store: missing %s", strings.Join(missing, ", "))
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("CASCADE_MINIO_ENDPOINT is host[:port]; use CASCADE_MINIO_USE_SSL for https")
	}
	return nil
}
