package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
)

// Storage wraps MinIO/S3 interactions for receipt images.
type Storage struct {
	client    *minio.Client
	bucket    string
	region    string
	signedTTL time.Duration
}

// New creates a MinIO client from the S3 config.
func New(cfg config.S3Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		signedTTL: ttl,
	}, nil
}

// EnsureBucket makes sure the receipts bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ObjectKey builds <prefix>/<userId>/<extractionId>-<filename>. Directory
// parts of filename are dropped.
func ObjectKey(prefix, userID, extractionID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "receipt"
	}
	key := fmt.Sprintf("%s/%s-%s", userID, extractionID, name)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// Upload stores the image bytes.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return apperr.Storage("upload object", err)
	}
	return nil
}

// Download fetches the image bytes.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Storage("get object", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperr.New(apperr.ErrStorage, "object not found: "+key, apperr.ErrNotFound)
		}
		return nil, apperr.Storage("read object", err)
	}
	return buf, nil
}

// Delete removes the image. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Storage("remove object", err)
	}
	return nil
}

// PresignURL returns a signed GET URL valid for the configured TTL.
func (s *Storage) PresignURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.signedTTL, url.Values{})
	if err != nil {
		return "", apperr.Storage("presign object", err)
	}
	return u.String(), nil
}
