package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bustrack/internal/config"
)

// ObjectStore archives admin exports and hands out short-lived links.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	bucket := s.cfg.BucketExports
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// ArchiveExport stores an export under exports/<date>/<name> and returns
// a presigned download URL.
func (s *ObjectStore) ArchiveExport(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	key := ExportKey(time.Now().UTC(), name)

	_, err := s.client.PutObject(ctx, s.cfg.BucketExports, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))
	u, err := s.client.PresignedGetObject(ctx, s.cfg.BucketExports, key, s.expiry(), params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *ObjectStore) expiry() time.Duration {
	if s.cfg.URLExpiry <= 0 {
		return 15 * time.Minute
	}
	return s.cfg.URLExpiry
}

func ExportKey(at time.Time, name string) string {
	return fmt.Sprintf("exports/%s/%s-%s", at.Format("2006-01-02"), at.Format("150405"), name)
}
