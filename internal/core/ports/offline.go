package ports

import (
	"context"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
)

// Fetcher performs a network fetch. A non-2xx status is a response, not an
// error; only transport failures are errors.
type Fetcher interface {
	Fetch(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error)
}

// GenerationStore holds named cache generations of request -> response pairs.
type GenerationStore interface {
	// Open creates the generation if it does not exist yet.
	Open(ctx context.Context, name string) error
	// Names lists every existing generation.
	Names(ctx context.Context) ([]string, error)
	// Delete drops a generation and all of its entries. deleted=false if absent.
	Delete(ctx context.Context, name string) (deleted bool, err error)
	// Match returns the stored response for key in generation name.
	Match(ctx context.Context, name, key string) (*offline.CachedResponse, bool, error)
	// Put stores resp under key, creating the generation when needed.
	Put(ctx context.Context, name, key string, resp *offline.CachedResponse) error
}

// ClientNotifier delivers controller messages to connected client pages.
type ClientNotifier interface {
	// Broadcast posts msg to every connected client and returns how many received it.
	Broadcast(ctx context.Context, msg offline.Message) int
	// Clients returns the number of connected clients.
	Clients() int
}

// WorkerLifecycle tracks the install/activate state machine.
type WorkerLifecycle interface {
	State() offline.WorkerState
	Fire(event offline.WorkerEvent) (offline.WorkerState, error)
}

// OfflineMetrics records controller and storage outcomes.
type OfflineMetrics interface {
	ObserveFetch(strategy offline.Strategy, source string, d time.Duration)
	CacheWriteFailed(strategy offline.Strategy)
	StorageFallback(op string)
}

// NopOfflineMetrics discards all observations.
type NopOfflineMetrics struct{}

func (NopOfflineMetrics) ObserveFetch(offline.Strategy, string, time.Duration) {}
func (NopOfflineMetrics) CacheWriteFailed(offline.Strategy)                    {}
func (NopOfflineMetrics) StorageFallback(string)                               {}

// OfflineController is the fetch interceptor exposed to the HTTP layer.
type OfflineController interface {
	Version() string
	Install(ctx context.Context) error
	Activate(ctx context.Context) error
	State() offline.WorkerState
	Handle(ctx context.Context, req *offline.Request) (*offline.CachedResponse, offline.Strategy, error)
	Sync(ctx context.Context, tag string) (int, error)
}
