package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrNoCachedResponse is returned when a request could be served neither from
// the network nor from the current cache generation.
var ErrNoCachedResponse = errors.New("no cached response")

// DefaultCacheVersion names the cache generation when none is configured.
const DefaultCacheVersion = "sat-crack-v1.2"

// OfflineControllerConfig groups configuration parameters for the controller.
type OfflineControllerConfig struct {
	Version               string
	Scope                 offline.Scope
	APITimeout            time.Duration
	CriticalAssets        []string
	PrecacheAssets        []string
	OfflineDocument       string
	DeferredPrecacheDelay time.Duration
}

// OfflineController intercepts fetches at the origin boundary and answers
// them from the network or the current cache generation depending on the
// request class. It owns the install/activate lifecycle of the generation.
type OfflineController struct {
	version         string
	scope           offline.Scope
	apiTimeout      time.Duration
	critical        []string
	precache        []string
	offlineDocument string
	precacheDelay   time.Duration

	network   ports.Fetcher
	store     ports.GenerationStore
	lifecycle ports.WorkerLifecycle
	notifier  ports.ClientNotifier
	metrics   ports.OfflineMetrics
	logger    *logrus.Logger
	now       func() time.Time

	revalidations singleflight.Group
	wg            sync.WaitGroup
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewOfflineController(network ports.Fetcher, store ports.GenerationStore, lifecycle ports.WorkerLifecycle, notifier ports.ClientNotifier, metrics ports.OfflineMetrics, cfg *OfflineControllerConfig, logger *logrus.Logger) *OfflineController {
	// Apply defaults
	c := &OfflineController{
		version:         DefaultCacheVersion,
		apiTimeout:      3 * time.Second,
		offlineDocument: "/index.html",
		precacheDelay:   5 * time.Second,
		network:         network,
		store:           store,
		lifecycle:       lifecycle,
		notifier:        notifier,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
		stop:            make(chan struct{}),
	}
	if cfg != nil {
		if cfg.Version != "" {
			c.version = cfg.Version
		}
		c.scope = cfg.Scope
		if cfg.APITimeout > 0 {
			c.apiTimeout = cfg.APITimeout
		}
		c.critical = cfg.CriticalAssets
		c.precache = cfg.PrecacheAssets
		if cfg.OfflineDocument != "" {
			c.offlineDocument = cfg.OfflineDocument
		}
		if cfg.DeferredPrecacheDelay > 0 {
			c.precacheDelay = cfg.DeferredPrecacheDelay
		}
	}
	if c.metrics == nil {
		c.metrics = ports.NopOfflineMetrics{}
	}
	return c
}

// Version returns the name of the current cache generation.
func (c *OfflineController) Version() string { return c.version }

func (c *OfflineController) State() offline.WorkerState { return c.lifecycle.State() }

// Wait blocks until background work (deferred precache, revalidations and
// late cache writes) has finished.
func (c *OfflineController) Wait() { c.wg.Wait() }

// Close cancels a pending deferred precache and drains background work.
func (c *OfflineController) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// assetKey resolves an origin-relative asset path to its cache key.
func (c *OfflineController) assetKey(path string) (string, error) {
	u, err := c.assetURL(path)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (c *OfflineController) assetURL(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if c.scope.Origin == nil {
		return ref, nil
	}
	return c.scope.Origin.ResolveReference(ref), nil
}

// match looks key up in the current generation. Storage errors count as a miss.
func (c *OfflineController) match(ctx context.Context, key string) (*offline.CachedResponse, bool) {
	resp, ok, err := c.store.Match(ctx, c.version, key)
	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"generation": c.version, "key": key}).WithError(err).Warn("offline controller: cache lookup failed")
		}
		return nil, false
	}
	return resp, ok
}

// put writes a copy of resp into the current generation. Failures are logged
// and counted; they never fail the response being served.
func (c *OfflineController) put(ctx context.Context, strategy offline.Strategy, key string, resp *offline.CachedResponse) {
	stored := resp.Clone()
	stored.StoredAt = c.now().UTC()
	if err := c.store.Put(ctx, c.version, key, stored); err != nil {
		c.metrics.CacheWriteFailed(strategy)
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"generation": c.version, "key": key, "strategy": strategy}).WithError(err).Warn("offline controller: cache write failed")
		}
	}
}

// goBackground runs fn on a tracked goroutine with a context that outlives
// the request that triggered it.
func (c *OfflineController) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(bg)
	}()
}

// Fetcher exposes the controller as a ports.Fetcher, so server-side callers
// take the same interception path as a client page.
func (c *OfflineController) Fetcher() ports.Fetcher { return interceptingFetcher{c: c} }

type interceptingFetcher struct{ c *OfflineController }

func (f interceptingFetcher) Fetch(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error) {
	resp, _, err := f.c.Handle(ctx, req)
	return resp, err
}
