package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// BucketStore is the GCS-backed blob.Store. Handles look like gs://bucket/key.
type BucketStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewBucketStore(ctx context.Context, log *logger.Logger, bucket string) (*BucketStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing env var DOCUMENTS_GCS_BUCKET")
	}
	client, err := storage.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	slog := log.With("service", "gcp.BucketStore")
	slog.Info("Object storage initialized", "bucket", bucket)
	return &BucketStore{log: slog, client: client, bucket: bucket}, nil
}

func (s *BucketStore) Scheme() string { return "gs" }

func (s *BucketStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = ContentTypeForKey(key)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return blob.Handle{Scheme: s.Scheme(), Bucket: s.bucket, Key: key}.String(), nil
}

func (s *BucketStore) Get(ctx context.Context, handle string) ([]byte, error) {
	h, err := s.parse(handle)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(h.Bucket).Object(h.Key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *BucketStore) Delete(ctx context.Context, handle string) error {
	h, err := s.parse(handle)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.client.Bucket(h.Bucket).Object(h.Key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", h.Key, h.Bucket, err)
	}
	return nil
}

func (s *BucketStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *BucketStore) parse(handle string) (blob.Handle, error) {
	h, err := blob.ParseHandle(handle)
	if err != nil {
		return blob.Handle{}, err
	}
	if h.Scheme != s.Scheme() {
		return blob.Handle{}, fmt.Errorf("%w: %s is not a gcs handle", blob.ErrInvalidHandle, handle)
	}
	return h, nil
}

// ContentTypeForKey guesses a content type from the key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(strings.TrimSpace(key))) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
