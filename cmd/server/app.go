package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/satcrack-offline/configs"
	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/db"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/health"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/kvstore"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/metrics"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/notify"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/origin"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/questionbank"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/redis"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/repositories"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/statemachine"
)

// app holds every wired component. Commands build one, use what they need
// and close it.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger

	database    *db.Database
	redisClient *goredis.Client

	questionCache  *services.QuestionCacheService
	questionLoader *services.QuestionLoaderService
	controller     *services.OfflineController
	lifecycle      *statemachine.Lifecycle
	hub            *notify.Hub
	fetcher        *origin.HTTPFetcher
	authService    *services.AuthService
	rateLimiter    ports.RateLimiterService
	healthCheckers []ports.HealthChecker

	closers []func() error
}

const defaultBadgerGCInterval = 10 * time.Minute

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	offlineMetrics, err := metrics.NewOfflineMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("register offline metrics: %w", err)
	}

	if cfg.Redis.Enabled {
		a.redisClient, err = redis.NewRedisClient(ctx, &cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.redisClient.Close)
		a.healthCheckers = append(a.healthCheckers, health.NewRedisHealthChecker(a.redisClient))
		logger.Info("Connected to Redis successfully")

		rateLimitRepo := repositories.NewRateLimitRedisRepository(a.redisClient)
		a.rateLimiter = services.NewRateLimiterService(rateLimitRepo, &services.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstMultiplier:   cfg.RateLimit.BurstMultiplier,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         cfg.RateLimit.KeyPrefix,
		}, logger)
	}

	backend, err := a.newKVBackend()
	if err != nil {
		return nil, err
	}

	validator, err := questionbank.NewValidator(cfg.Upstream.SchemaFile, logger)
	if err != nil {
		return nil, err
	}

	store := services.NewChunkedStore(backend, &services.ChunkedStoreConfig{
		ChunkSize:    cfg.Storage.ChunkSize,
		Threshold:    cfg.Storage.Threshold,
		MaxChunkScan: cfg.Storage.MaxChunkScan,
	}, offlineMetrics, logger)
	a.questionCache = services.NewQuestionCacheService(store, validator, nil, logger)

	generations, err := a.newGenerationStore(ctx)
	if err != nil {
		return nil, err
	}

	a.lifecycle, err = statemachine.NewLifecycle(logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.lifecycle.Stop(); return nil })
	a.healthCheckers = append(a.healthCheckers, health.NewLifecycleHealthChecker(a.lifecycle))

	a.hub = notify.NewHub(16, logger)
	a.fetcher = origin.NewHTTPFetcher(&http.Client{Timeout: cfg.Upstream.Timeout}, origin.FetcherConfig{
		Timeout:         cfg.Upstream.Timeout,
		BreakerFailures: cfg.Upstream.BreakerFailures,
		BreakerTimeout:  cfg.Upstream.BreakerTimeout,
	}, logger)

	originURL, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}
	a.controller = services.NewOfflineController(a.fetcher, generations, a.lifecycle, a.hub, offlineMetrics, &services.OfflineControllerConfig{
		Version:               cfg.Offline.Version,
		Scope:                 offline.Scope{Origin: originURL, APIHosts: cfg.Offline.APIHosts},
		APITimeout:            cfg.Offline.APITimeout,
		CriticalAssets:        cfg.Offline.CriticalAssets,
		PrecacheAssets:        cfg.Offline.PrecacheAssets,
		OfflineDocument:       cfg.Offline.OfflineDocument,
		DeferredPrecacheDelay: cfg.Offline.DeferredPrecacheDelay,
	}, logger)

	var upstream ports.QuestionSource
	if cfg.Upstream.QuestionsURL != "" {
		src, err := questionbank.NewHTTPSource(a.controller.Fetcher(), validator, questionbank.HTTPSourceConfig{
			URL:          cfg.Upstream.QuestionsURL,
			MaxAttempts:  cfg.Upstream.MaxAttempts,
			InitialDelay: cfg.Upstream.RetryDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		upstream = src
	}
	var bundled ports.QuestionSource
	if cfg.Upstream.FallbackFile != "" {
		bundled = questionbank.NewFileSource(cfg.Upstream.FallbackFile, validator)
	}
	a.questionLoader = services.NewQuestionLoaderService(a.questionCache, upstream, bundled, nil, logger)

	if cfg.Admin.JWTSecret != "" {
		a.authService = services.NewAuthService(&cfg.Admin, logger)
	}
	ready = true
	return a, nil
}

func (a *app) newKVBackend() (ports.KVBackend, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "memory":
		return kvstore.NewMemoryBackend(sc.QuotaBytes), nil
	case "redis":
		return redis.NewKVBackend(a.redisClient, sc.KeyPrefix, sc.Threshold), nil
	default:
		b, err := kvstore.NewBadgerBackend(kvstore.BadgerConfig{
			Dir:        sc.BadgerDir,
			KeyPrefix:  sc.KeyPrefix + ":",
			GCInterval: defaultBadgerGCInterval,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		a.healthCheckers = append(a.healthCheckers, health.NewStorageHealthChecker("storage", b))
		a.logger.WithField("dir", sc.BadgerDir).Info("Opened offline store")
		return b, nil
	}
}

func (a *app) newGenerationStore(ctx context.Context) (ports.GenerationStore, error) {
	if a.cfg.Generations.Backend != "postgres" {
		return repositories.NewMemoryGenerationRepository(), nil
	}
	database, err := db.Open(ctx, &a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.database = database
	a.closers = append(a.closers, database.Close)
	a.healthCheckers = append(a.healthCheckers, health.NewDBHealthChecker(database))

	version, err := database.Migrate()
	if err != nil {
		return nil, err
	}
	a.logger.WithField("schema_version", version).Info("Connected to generation database")
	return repositories.NewGenerationRepository(database), nil
}

// Close drains the controller and releases resources in reverse order.
func (a *app) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}

// warm loads the question bank through the fallback chain so it is cached.
func (a *app) warm(ctx context.Context) (int, error) {
	bank, err := a.questionLoader.Load(ctx)
	if err != nil {
		return 0, err
	}
	return bank.Count(), nil
}
