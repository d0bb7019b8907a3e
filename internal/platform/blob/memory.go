package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps objects in process memory. Used for local runs and tests.
type MemoryStore struct {
	bucket string
	mu     sync.RWMutex
	data   map[string][]byte
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStore{bucket: bucket, data: map[string][]byte{}}
}

func (m *MemoryStore) Scheme() string { return "mem" }

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob: empty key")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	h := Handle{Scheme: m.Scheme(), Bucket: m.bucket, Key: key}
	m.mu.Lock()
	m.data[h.String()] = buf.Bytes()
	m.mu.Unlock()
	return h.String(), nil
}

func (m *MemoryStore) Get(ctx context.Context, handle string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return append([]byte(nil), b...), nil
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Delete(ctx context.Context, handle string) error {
	m.mu.Lock()
	delete(m.data, handle)
	m.mu.Unlock()
	return nil
}
