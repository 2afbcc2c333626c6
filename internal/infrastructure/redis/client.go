package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avatarctic/satcrack-offline/configs"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects to redis and waits for it to answer a PING.
// The server may come up before redis does, so the PING is retried a few
// times before giving up.
func NewRedisClient(ctx context.Context, cfg *configs.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})

	pingTimeout := cfg.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	r := retry.New[string](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  250 * time.Millisecond,
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    2.0,
	})
	attempt := 0
	_, err := r.Do(ctx, func(ctx context.Context) (string, error) {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		pong, err := client.Ping(pctx).Result()
		if err != nil && logger != nil {
			logger.WithFields(logrus.Fields{"addr": client.Options().Addr, "attempt": attempt}).WithError(err).Warn("redis not ready")
		}
		return pong, err
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", client.Options().Addr, err)
	}
	return client, nil
}
