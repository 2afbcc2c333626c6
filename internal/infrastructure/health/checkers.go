package health

import (
	"context"
	"errors"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	infraDB "github.com/avatarctic/satcrack-offline/internal/infrastructure/db"
	"github.com/go-redis/redis/v8"
)

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client *redis.Client }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

type storageHealthChecker struct {
	name string
	p    ports.Pinger
}

func (s *storageHealthChecker) Name() string                    { return s.name }
func (s *storageHealthChecker) Check(ctx context.Context) error { return s.p.Ping(ctx) }

// lifecycleHealthChecker reports the offline controller unhealthy once it
// has become redundant.
type lifecycleHealthChecker struct{ lc ports.WorkerLifecycle }

var errRedundant = errors.New("offline controller is redundant")

func (l *lifecycleHealthChecker) Name() string { return "offline_controller" }
func (l *lifecycleHealthChecker) Check(ctx context.Context) error {
	if l.lc.State() == offline.StateRedundant {
		return errRedundant
	}
	return nil
}

// NewDBHealthChecker creates a health checker for the generation database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker {
	return &storageHealthChecker{name: "database", p: db}
}

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client *redis.Client) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewStorageHealthChecker creates a health checker for a local key-value store.
func NewStorageHealthChecker(name string, p ports.Pinger) ports.HealthChecker {
	return &storageHealthChecker{name: name, p: p}
}

// NewLifecycleHealthChecker creates a health checker for the controller lifecycle.
func NewLifecycleHealthChecker(lc ports.WorkerLifecycle) ports.HealthChecker {
	return &lifecycleHealthChecker{lc: lc}
}
