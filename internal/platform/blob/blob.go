// Package blob is the opaque put/get surface for uploaded document bytes.
// Stored objects are addressed by a handle of the form scheme://bucket/key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNotFound      = errors.New("blob: not found")
	ErrInvalidHandle = errors.New("blob: invalid handle")
)

type Store interface {
	// Scheme is the handle prefix this store owns (gs, minio, mem).
	Scheme() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

type Handle struct {
	Scheme string
	Bucket string
	Key    string
}

func (h Handle) String() string {
	return h.Scheme + "://" + h.Bucket + "/" + h.Key
}

func ParseHandle(raw string) (Handle, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return Handle{Scheme: strings.ToLower(scheme), Bucket: bucket, Key: key}, nil
}

// Router dispatches reads and deletes to the store that owns a handle's scheme
// and writes to the primary store.
type Router struct {
	primary Store
	stores  map[string]Store
}

func NewRouter(primary Store, others ...Store) *Router {
	r := &Router{primary: primary, stores: map[string]Store{}}
	for _, s := range append([]Store{primary}, others...) {
		if s != nil {
			r.stores[s.Scheme()] = s
		}
	}
	return r
}

func (r *Router) Scheme() string { return r.primary.Scheme() }

func (r *Router) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	return r.primary.Put(ctx, key, body, size, contentType)
}

func (r *Router) Get(ctx context.Context, handle string) ([]byte, error) {
	s, err := r.storeFor(handle)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, handle)
}

func (r *Router) Delete(ctx context.Context, handle string) error {
	s, err := r.storeFor(handle)
	if err != nil {
		return err
	}
	return s.Delete(ctx, handle)
}

// Owns reports whether some configured store can resolve handle.
func (r *Router) Owns(handle string) bool {
	_, err := r.storeFor(handle)
	return err == nil
}

func (r *Router) storeFor(handle string) (Store, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return nil, err
	}
	s, ok := r.stores[h.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no store for scheme %q", ErrInvalidHandle, h.Scheme)
	}
	return s, nil
}
