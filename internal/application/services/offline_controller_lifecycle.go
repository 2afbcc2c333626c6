package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/sirupsen/logrus"
)

// Install opens the current generation and stores every critical asset. It
// is all-or-nothing: if any asset cannot be fetched nothing is stored and the
// controller becomes redundant.
func (c *OfflineController) Install(ctx context.Context) error {
	if _, err := c.lifecycle.Fire(offline.EventInstall); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"generation": c.version, "assets": len(c.critical)}).Info("offline controller: installing")
	}
	if err := c.installCritical(ctx); err != nil {
		c.fail()
		return fmt.Errorf("install: %w", err)
	}
	if _, err := c.lifecycle.Fire(offline.EventInstalled); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if c.logger != nil {
		c.logger.WithField("generation", c.version).Info("offline controller: critical assets cached")
	}
	return nil
}

// installCritical fetches every critical asset before the generation is
// opened, so a failed fetch leaves no empty generation behind.
func (c *OfflineController) installCritical(ctx context.Context) error {
	type fetched struct {
		key  string
		resp *offline.CachedResponse
	}
	batch := make([]fetched, 0, len(c.critical))
	for _, path := range c.critical {
		resp, key, err := c.fetchAsset(ctx, path)
		if err != nil {
			return err
		}
		batch = append(batch, fetched{key: key, resp: resp})
	}

	if err := c.store.Open(ctx, c.version); err != nil {
		return err
	}
	for _, f := range batch {
		stored := f.resp.Clone()
		stored.StoredAt = c.now().UTC()
		if err := c.store.Put(ctx, c.version, f.key, stored); err != nil {
			c.dropGeneration(ctx)
			return fmt.Errorf("store %s: %w", f.key, err)
		}
	}
	return nil
}

func (c *OfflineController) dropGeneration(ctx context.Context) {
	if _, err := c.store.Delete(ctx, c.version); err != nil && c.logger != nil {
		c.logger.WithField("generation", c.version).WithError(err).Warn("offline controller: failed to drop partial generation")
	}
}

// fetchAsset fetches an origin-relative asset, treating a non-2xx status as
// a failure.
func (c *OfflineController) fetchAsset(ctx context.Context, path string) (*offline.CachedResponse, string, error) {
	u, err := c.assetURL(path)
	if err != nil {
		return nil, "", fmt.Errorf("asset %q: %w", path, err)
	}
	req := offline.NewRequest(u)
	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", u, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, "", fmt.Errorf("fetch %s: unexpected status %d", u, resp.Status)
	}
	return resp, req.Key(), nil
}

func (c *OfflineController) fail() {
	if _, err := c.lifecycle.Fire(offline.EventFail); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("offline controller: failed to mark lifecycle redundant")
	}
}

// Activate deletes every generation but the current one, starts intercepting
// requests and schedules the deferred precache of the non-critical assets.
func (c *OfflineController) Activate(ctx context.Context) error {
	if _, err := c.lifecycle.Fire(offline.EventActivate); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	names, err := c.store.Names(ctx)
	if err != nil {
		c.fail()
		return fmt.Errorf("activate: list generations: %w", err)
	}
	for _, name := range names {
		if name == c.version {
			continue
		}
		if _, err := c.store.Delete(ctx, name); err != nil {
			c.fail()
			return fmt.Errorf("activate: delete generation %s: %w", name, err)
		}
		if c.logger != nil {
			c.logger.WithField("generation", name).Info("offline controller: removed old generation")
		}
	}
	if _, err := c.lifecycle.Fire(offline.EventActivated); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if c.logger != nil {
		clients := 0
		if c.notifier != nil {
			clients = c.notifier.Clients()
		}
		c.logger.WithFields(logrus.Fields{"generation": c.version, "clients": clients}).Info("offline controller: activated and controlling clients")
	}
	c.scheduleDeferredPrecache(ctx)
	return nil
}

// Start installs and immediately activates, without waiting for an older
// generation to go idle.
func (c *OfflineController) Start(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// remainingAssets returns the precache list minus the critical assets.
func (c *OfflineController) remainingAssets() []string {
	var out []string
	for _, a := range c.precache {
		if !slices.Contains(c.critical, a) {
			out = append(out, a)
		}
	}
	return out
}

func (c *OfflineController) scheduleDeferredPrecache(ctx context.Context) {
	assets := c.remainingAssets()
	if len(assets) == 0 {
		return
	}
	c.goBackground(ctx, func(ctx context.Context) {
		timer := time.NewTimer(c.precacheDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.stop:
			return
		}
		cached := 0
		for _, path := range assets {
			resp, key, err := c.fetchAsset(ctx, path)
			if err != nil {
				if c.logger != nil {
					c.logger.WithField("asset", path).WithError(err).Warn("offline controller: deferred precache fetch failed")
				}
				continue
			}
			c.put(ctx, offline.StrategyCacheFirst, key, resp)
			cached++
		}
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"generation": c.version, "cached": cached, "assets": len(assets)}).Info("offline controller: remaining assets cached")
		}
	})
}
