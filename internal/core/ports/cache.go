package ports

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by a backend that refuses a write for lack of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrStorageUnavailable is returned when the backend cannot be reached at all.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// KVBackend is the persistent key-value store beneath the chunked store.
// Values are opaque bytes (UTF-8 JSON text in practice). Implementations
// should degrade gracefully, returning an error without crashing callers,
// so that the chunked store can fall back to memory.
type KVBackend interface {
	// Get returns the raw bytes for key. ok=false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key; absence is not an error.
	Delete(ctx context.Context, key string) error
}
