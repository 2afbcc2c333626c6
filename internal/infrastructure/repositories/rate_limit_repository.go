package repositories

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitRedisRepository counts API and proxy requests per client in fixed
// windows. Every window gets its own key so an old window simply expires.
type RateLimitRedisRepository struct {
	r   redis.Cmdable
	now func() time.Time
}

func NewRateLimitRedisRepository(r redis.Cmdable) *RateLimitRedisRepository {
	return &RateLimitRedisRepository{r: r, now: time.Now}
}

// windowKey builds "<prefix>:<client>:<window start unix>".
func windowKey(prefix, clientKey string, windowStart time.Time) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(clientKey)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(windowStart.Unix(), 10))
	return b.String()
}

// IncrementWindow bumps the counter of the window containing now and keeps
// the key alive for ttl.
func (repo *RateLimitRedisRepository) IncrementWindow(ctx context.Context, clientKey string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	windowStart := repo.now().Truncate(window)
	key := windowKey(keyPrefix, clientKey, windowStart)

	var incr *redis.IntCmd
	_, err := repo.r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, windowStart, err
	}
	return int(incr.Val()), windowStart, nil
}
