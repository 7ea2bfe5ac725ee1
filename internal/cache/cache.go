package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
)

// Cache defines the interface for caching provider responses
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key generates a cache key from a namespace and its parts
func Key(namespace string, parts ...string) string {
	h := xxhash.New64()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return "v1:" + namespace + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Noop is a Cache that stores nothing
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }
func (Noop) Clear(context.Context) error { return nil }

// prefixed joins a key prefix without doubling separators
func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, ":") + ":" + key
}
