package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

var ErrDimensionMismatch = errors.New("analysis: embedding dimension mismatch")

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// BatchEmbedder is the oracle call underneath an Embedder.
type BatchEmbedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	EmbedModel() string
}

// VectorCache stores embeddings by key. Misses and cache errors both report ok=false.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

type OracleEmbedder struct {
	log    *logger.Logger
	client BatchEmbedder
	dim    int
	cache  VectorCache
}

// NewOracleEmbedder wraps client. cache may be nil.
func NewOracleEmbedder(log *logger.Logger, client BatchEmbedder, dim int, cache VectorCache) *OracleEmbedder {
	return &OracleEmbedder{log: log.With("component", "Embedder"), client: client, dim: dim, cache: cache}
}

func (e *OracleEmbedder) Dimension() int { return e.dim }

func (e *OracleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(e.client.EmbedModel(), text)
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, key); ok && len(vec) == e.dim {
			return vec, nil
		}
	}
	vecs, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrDimensionMismatch, len(vecs))
	}
	if len(vecs[0]) != e.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vecs[0]), e.dim)
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, vecs[0])
	}
	return vecs[0], nil
}

// CacheKey is stable across processes for the same model and whitespace-normalized text.
func CacheKey(model, text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(model + "\x00" + norm))
	return hex.EncodeToString(sum[:])
}

type RedisVectorCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisVectorCache(log *logger.Logger, rdb *goredis.Client, ttl time.Duration) *RedisVectorCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisVectorCache{log: log.With("component", "RedisVectorCache"), rdb: rdb, prefix: "docsearch:emb:", ttl: ttl}
}

func (c *RedisVectorCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("embedding cache read failed", "error", err)
		}
		return nil, false
	}
	vec, ok := decodeVector(raw)
	return vec, ok
}

func (c *RedisVectorCache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.rdb.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, true
}
