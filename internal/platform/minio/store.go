// Package minio provides an S3-compatible blob.Store for self-hosted deployments.
package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/envutil"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func ConfigFromEnv() Config {
	return Config{
		Endpoint:  envutil.String("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: envutil.String("MINIO_ACCESS_KEY", ""),
		SecretKey: envutil.String("MINIO_SECRET_KEY", ""),
		Bucket:    envutil.String("MINIO_BUCKET", "docsearch-documents"),
		UseSSL:    envutil.Bool("MINIO_USE_SSL", false),
	}
}

// Store keeps objects in a single MinIO bucket. Handles look like minio://bucket/key.
type Store struct {
	log    *logger.Logger
	client *miniogo.Client
	bucket string
}

// New connects and creates the bucket when it does not exist yet.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing env var MINIO_BUCKET")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	slog := log.With("service", "minio.Store")
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		slog.Info("MinIO bucket created", "bucket", cfg.Bucket)
	}
	return &Store{log: slog, client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Scheme() string { return "minio" }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 {
		size = -1
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, miniogo.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("minio put %q: %w", key, err)
	}
	return blob.Handle{Scheme: s.Scheme(), Bucket: s.bucket, Key: key}.String(), nil
}

func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	h, err := s.parse(handle)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, h.Bucket, h.Key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %q: %w", h.Key, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, handle)
		}
		return nil, fmt.Errorf("minio read %q: %w", h.Key, err)
	}
	return b, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	h, err := s.parse(handle)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, h.Bucket, h.Key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete %q: %w", h.Key, err)
	}
	return nil
}

func (s *Store) parse(handle string) (blob.Handle, error) {
	h, err := blob.ParseHandle(handle)
	if err != nil {
		return blob.Handle{}, err
	}
	if h.Scheme != s.Scheme() {
		return blob.Handle{}, fmt.Errorf("%w: %s is not a minio handle", blob.ErrInvalidHandle, handle)
	}
	return h, nil
}
