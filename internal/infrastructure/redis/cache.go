package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/go-redis/redis/v8"
)

// KVBackend implements ports.KVBackend on Redis so several server instances
// can share one offline question cache.
type KVBackend struct {
	r redis.Cmdable
	// optional key prefix to namespace entries
	prefix string
	// maxValueBytes rejects larger values with ErrQuotaExceeded (0 = unlimited)
	maxValueBytes int
}

// NewKVBackend creates a new Redis-backed key-value backend.
func NewKVBackend(r redis.Cmdable, prefix string, maxValueBytes int) *KVBackend {
	return &KVBackend{r: r, prefix: prefix, maxValueBytes: maxValueBytes}
}

func (c *KVBackend) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *KVBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.r.Get(ctx, c.namespaced(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return val, true, nil
}

func (c *KVBackend) Set(ctx context.Context, key string, value []byte) error {
	if c.maxValueBytes > 0 && len(value) > c.maxValueBytes {
		return fmt.Errorf("redis set %q (%d bytes): %w", key, len(value), ports.ErrQuotaExceeded)
	}
	if err := c.r.Set(ctx, c.namespaced(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return nil
}

func (c *KVBackend) Delete(ctx context.Context, key string) error {
	if err := c.r.Del(ctx, c.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return nil
}
