package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/gcp"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/platform/minio"
)

const (
	BlobBackendGCS   = "gcs"
	BlobBackendMinIO = "minio"
	BlobBackendMem   = "mem"
)

var (
	newGCSStore = func(ctx context.Context, log *logger.Logger, bucket string) (blob.Store, error) {
		return gcp.NewBucketStore(ctx, log, bucket)
	}
	newMinIOStore = func(ctx context.Context, log *logger.Logger, cfg minio.Config) (blob.Store, error) {
		return minio.New(ctx, log, cfg)
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidBackend StorageProviderBootstrapErrorCode = "invalid_backend"
	StorageProviderBootstrapErrorMissingBucket  StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed  StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code    StorageProviderBootstrapErrorCode
	Backend string
	Bucket  string
	Cause   error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "blob storage bootstrap failed"
	}
	return fmt.Sprintf(
		"blob storage bootstrap failed (code=%s backend=%q bucket=%q): %v",
		e.Code,
		e.Backend,
		e.Bucket,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBlobStore builds the store selected by BLOB_BACKEND and routes
// handles to it by scheme.
func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg Config) (*blob.Router, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.BlobBackend))
	log.Info("Selecting blob storage backend", "backend", backend)

	var (
		store  blob.Store
		bucket string
		err    error
	)
	switch backend {
	case BlobBackendGCS:
		bucket = strings.TrimSpace(cfg.GCSBucket)
		if bucket == "" {
			err = &StorageProviderBootstrapError{
				Code:    StorageProviderBootstrapErrorMissingBucket,
				Backend: backend,
				Cause:   errors.New("DOCUMENTS_GCS_BUCKET is required for the gcs backend"),
			}
			break
		}
		store, err = newGCSStore(ctx, log, bucket)
	case BlobBackendMinIO:
		mcfg := minio.ConfigFromEnv()
		bucket = mcfg.Bucket
		store, err = newMinIOStore(ctx, log, mcfg)
	case BlobBackendMem:
		log.Warn("Using in-memory blob store; uploads are lost on restart")
		store = blob.NewMemoryStore("local")
	default:
		err = &StorageProviderBootstrapError{
			Code:    StorageProviderBootstrapErrorInvalidBackend,
			Backend: backend,
			Cause:   fmt.Errorf("unsupported blob backend %q", backend),
		}
	}
	if err != nil {
		classified := classifyStorageProviderBootstrapError(backend, bucket, err)
		log.Error(
			"Blob storage bootstrap failed",
			"backend", backend,
			"bucket", bucket,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return blob.NewRouter(store), nil
}

func classifyStorageProviderBootstrapError(backend, bucket string, err error) error {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		return err
	}
	return &StorageProviderBootstrapError{
		Code:    StorageProviderBootstrapErrorConnectFailed,
		Backend: backend,
		Bucket:  bucket,
		Cause:   err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
