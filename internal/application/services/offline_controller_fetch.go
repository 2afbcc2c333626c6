package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/sirupsen/logrus"
)

// Handle answers an intercepted request with the strategy of its class.
// Until the controller is activated every request goes to the network.
func (c *OfflineController) Handle(ctx context.Context, req *offline.Request) (*offline.CachedResponse, offline.Strategy, error) {
	class := offline.ClassPassthrough
	if c.lifecycle.State() == offline.StateActivated {
		class = offline.Classify(req, c.scope)
	}
	strategy := offline.SelectStrategy(class)

	var (
		resp   *offline.CachedResponse
		source string
		err    error
	)
	start := time.Now()
	switch strategy {
	case offline.StrategyNetworkFirst:
		resp, source, err = c.networkFirst(ctx, req)
	case offline.StrategyRaceWithTimeout:
		resp, source, err = c.raceWithTimeout(ctx, req)
	case offline.StrategyCacheFirst:
		resp, source, err = c.cacheFirst(ctx, req)
	default:
		source = "network"
		resp, err = c.network.Fetch(ctx, req)
	}
	if err != nil {
		source = "none"
	}
	c.metrics.ObserveFetch(strategy, source, time.Since(start))
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"url": req.Key(), "strategy": strategy, "source": source}).Debug("offline controller: request handled")
	}
	return resp, strategy, err
}

// networkFirst serves the network response and stores it; on a transport
// failure it falls back to the cached entry and then to the offline document.
func (c *OfflineController) networkFirst(ctx context.Context, req *offline.Request) (*offline.CachedResponse, string, error) {
	key := req.Key()
	resp, err := c.network.Fetch(ctx, req)
	if err == nil {
		c.put(ctx, offline.StrategyNetworkFirst, key, resp)
		return resp, "network", nil
	}
	if cached, ok := c.match(ctx, key); ok {
		return cached, "cache", nil
	}
	if docKey, kerr := c.assetKey(c.offlineDocument); kerr == nil {
		if doc, ok := c.match(ctx, docKey); ok {
			return doc, "offline-document", nil
		}
	}
	return nil, "", fmt.Errorf("%w for %s: %w", ErrNoCachedResponse, key, err)
}

type fetchResult struct {
	resp *offline.CachedResponse
	err  error
}

// raceWithTimeout races the network against a timer that resolves to the
// cached entry. A successful network response is always written to the
// cache, including after the timer has already answered the caller. When
// the timer fires on a cache miss the caller keeps waiting for the network
// rather than failing at the timeout.
func (c *OfflineController) raceWithTimeout(ctx context.Context, req *offline.Request) (*offline.CachedResponse, string, error) {
	key := req.Key()
	results := make(chan fetchResult, 1)
	c.goBackground(ctx, func(bg context.Context) {
		resp, err := c.network.Fetch(bg, req)
		if err == nil {
			c.put(bg, offline.StrategyRaceWithTimeout, key, resp)
		}
		results <- fetchResult{resp: resp, err: err}
	})

	timer := time.NewTimer(c.apiTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return c.settleNetwork(ctx, key, r)
	case <-timer.C:
		if cached, ok := c.match(ctx, key); ok {
			return cached, "cache", nil
		}
		// Nothing cached: the slow network is the only answer left.
		select {
		case r := <-results:
			return c.settleNetwork(ctx, key, r)
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (c *OfflineController) settleNetwork(ctx context.Context, key string, r fetchResult) (*offline.CachedResponse, string, error) {
	if r.err == nil {
		return r.resp, "network", nil
	}
	if cached, ok := c.match(ctx, key); ok {
		return cached, "cache", nil
	}
	return nil, "", fmt.Errorf("%w for %s: %w", ErrNoCachedResponse, key, r.err)
}

// cacheFirst serves a cached entry immediately and refreshes it in the
// background; a miss is fetched from the network and stored.
func (c *OfflineController) cacheFirst(ctx context.Context, req *offline.Request) (*offline.CachedResponse, string, error) {
	key := req.Key()
	if cached, ok := c.match(ctx, key); ok {
		c.revalidate(ctx, req)
		return cached, "cache", nil
	}
	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		return nil, "", err
	}
	c.put(ctx, offline.StrategyCacheFirst, key, resp)
	return resp, "network", nil
}

// revalidate refetches req in the background. Concurrent refreshes of the
// same key share one fetch; errors are dropped.
func (c *OfflineController) revalidate(ctx context.Context, req *offline.Request) {
	key := req.Key()
	c.goBackground(ctx, func(bg context.Context) {
		_, _, _ = c.revalidations.Do(key, func() (any, error) {
			resp, err := c.network.Fetch(bg, req)
			if err != nil {
				if c.logger != nil {
					c.logger.WithField("url", key).WithError(err).Debug("offline controller: background refresh failed")
				}
				return nil, nil
			}
			c.put(bg, offline.StrategyCacheFirst, key, resp)
			return nil, nil
		})
	})
}
