package configs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Storage     StorageConfig
	Generations GenerationsConfig
	Upstream    UpstreamConfig
	Offline     OfflineConfig
	Admin       AdminConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	// Enabled turns on the redis client (rate limiting and the redis storage backend).
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// StorageConfig selects the key-value backend of the question cache.
type StorageConfig struct {
	Backend      string // memory, badger or redis
	BadgerDir    string
	KeyPrefix    string
	QuotaBytes   int
	ChunkSize    int
	Threshold    int
	MaxChunkScan int
}

// GenerationsConfig selects where cache generations are kept.
type GenerationsConfig struct {
	Backend string // memory or postgres
}

type UpstreamConfig struct {
	QuestionsURL    string
	FallbackFile    string
	SchemaFile      string
	Timeout         time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

type OfflineConfig struct {
	Version               string
	Origin                string
	APIHosts              []string
	APITimeout            time.Duration
	CriticalAssets        []string
	PrecacheAssets        []string
	OfflineDocument       string
	DeferredPrecacheDelay time.Duration
	AutoStart             bool
	RefreshMaxAge         time.Duration
}

type AdminConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
	BurstMultiplier   float64
	Window            time.Duration
	KeyPrefix         string
}

var defaultPrecacheAssets = []string{
	"/", "/index.html", "/topics.html", "/practice.html", "/profile.html",
	"/css/styles.css", "/css/loading.css",
	"/js/main.js", "/js/app.js", "/js/loaders.js", "/js/cache-utils.js",
	"/js/content-loader.js", "/js/performance-monitor.js", "/js/tab-manager.js",
	"/images/icon-192.png", "/images/icon-512.png", "/manifest.json",
}

var defaultCriticalAssets = []string{
	"/index.html", "/css/styles.css", "/js/cache-utils.js",
	"/js/content-loader.js", "/js/performance-monitor.js", "/js/loaders.js",
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "satcrack"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:      getBoolEnv("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "badger"),
			BadgerDir:    getEnv("STORAGE_BADGER_DIR", "data/offline"),
			KeyPrefix:    getEnv("STORAGE_KEY_PREFIX", "satcrack"),
			QuotaBytes:   getIntEnv("STORAGE_QUOTA_BYTES", 10<<20),
			ChunkSize:    getIntEnv("STORAGE_CHUNK_SIZE", 1<<20),
			Threshold:    getIntEnv("STORAGE_CHUNK_THRESHOLD", 4<<20),
			MaxChunkScan: getIntEnv("STORAGE_MAX_CHUNK_SCAN", 20),
		},
		Generations: GenerationsConfig{
			Backend: getEnv("GENERATIONS_BACKEND", "memory"),
		},
		Upstream: UpstreamConfig{
			QuestionsURL:    getEnv("UPSTREAM_QUESTIONS_URL", "https://api.jsonsilo.com/public/942c3c3b-3a0c-4be3-81c2-12029def19f5"),
			FallbackFile:    getEnv("UPSTREAM_FALLBACK_FILE", "data/questions.json"),
			SchemaFile:      getEnv("UPSTREAM_SCHEMA_FILE", ""),
			Timeout:         getDurationEnv("UPSTREAM_TIMEOUT", 10*time.Second),
			MaxAttempts:     getIntEnv("UPSTREAM_MAX_ATTEMPTS", 3),
			RetryDelay:      getDurationEnv("UPSTREAM_RETRY_DELAY", 200*time.Millisecond),
			BreakerFailures: getIntEnv("UPSTREAM_BREAKER_FAILURES", 5),
			BreakerTimeout:  getDurationEnv("UPSTREAM_BREAKER_TIMEOUT", 30*time.Second),
		},
		Offline: OfflineConfig{
			Version:               getEnv("OFFLINE_CACHE_VERSION", "sat-crack-v1.2"),
			Origin:                getEnv("OFFLINE_ORIGIN", "http://localhost:3000"),
			APIHosts:              getListEnv("OFFLINE_API_HOSTS", []string{"api.jsonsilo.com"}),
			APITimeout:            getDurationEnv("OFFLINE_API_TIMEOUT", 3*time.Second),
			CriticalAssets:        getListEnv("OFFLINE_CRITICAL_ASSETS", defaultCriticalAssets),
			PrecacheAssets:        getListEnv("OFFLINE_PRECACHE_ASSETS", defaultPrecacheAssets),
			OfflineDocument:       getEnv("OFFLINE_DOCUMENT", "/index.html"),
			DeferredPrecacheDelay: getDurationEnv("OFFLINE_PRECACHE_DELAY", 5*time.Second),
			AutoStart:             getBoolEnv("OFFLINE_AUTO_START", true),
			RefreshMaxAge:         getDurationEnv("OFFLINE_REFRESH_MAX_AGE", 24*time.Hour),
		},
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("ADMIN_TOKEN_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 120),
			BurstMultiplier:   getFloatEnv("RATE_LIMIT_BURST", 2.0),
			Window:            getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:         getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:client"),
		},
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "badger":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("STORAGE_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Generations.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown GENERATIONS_BACKEND %q", c.Generations.Backend)
	}
	if _, err := c.OriginURL(); err != nil {
		return err
	}
	return nil
}

// OriginURL parses the origin the offline controller serves.
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Offline.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid OFFLINE_ORIGIN: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OFFLINE_ORIGIN %q: scheme and host required", c.Offline.Origin)
	}
	return u, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getListEnv reads a comma-separated list, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
