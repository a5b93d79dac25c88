package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EmbeddingCache = (*EmbeddingCache)(nil)

const embeddingPrefix = "sercha-rag:emb:"

// EmbeddingCache stores vectors as little-endian float32 blobs.
type EmbeddingCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewEmbeddingCache creates a cache. A zero ttl keeps entries forever.
func NewEmbeddingCache(client redis.Cmdable, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, ttl: ttl}
}

// Get returns the vector for key, or false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, embeddingPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding %s: %w", key, err)
	}
	if len(raw)%4 != 0 {
		return nil, false, fmt.Errorf("corrupt embedding %s: %d bytes", key, len(raw))
	}
	return decodeVector(raw), true, nil
}

// Set stores vector under key.
func (c *EmbeddingCache) Set(ctx context.Context, key string, vector []float32) error {
	if err := c.client.Set(ctx, embeddingPrefix+key, encodeVector(vector), c.ttl).Err(); err != nil {
		return fmt.Errorf("set embedding %s: %w", key, err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
