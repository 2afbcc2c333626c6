package ports

import "context"

// HealthChecker probes one dependency of the offline server: a storage
// backend, the generation database or the controller lifecycle.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Pinger is a store that can verify it is readable.
type Pinger interface {
	Ping(ctx context.Context) error
}
