// Package origin performs the real network fetches behind the offline controller.
package origin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/sirupsen/logrus"
)

// FetcherConfig configures the network fetcher.
type FetcherConfig struct {
	Timeout time.Duration
	// MaxBodyBytes caps the bytes read from one response.
	MaxBodyBytes int64
	// BreakerFailures is the number of consecutive transport failures that
	// open the circuit of a host.
	BreakerFailures int
	BreakerTimeout  time.Duration
	UserAgent       string
}

// HTTPFetcher implements ports.Fetcher with net/http and a circuit breaker
// per host. Only transport failures count against the breaker: a 404 or 500
// is a valid response for the controller to cache or pass on.
type HTTPFetcher struct {
	client   *http.Client
	cfg      FetcherConfig
	logger   *logrus.Logger
	mu       sync.RWMutex
	breakers map[string]circuitbreaker.CircuitBreaker[*offline.CachedResponse]
}

func NewHTTPFetcher(client *http.Client, cfg FetcherConfig, logger *logrus.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "satcrack-offline/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPFetcher{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]circuitbreaker.CircuitBreaker[*offline.CachedResponse]),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error) {
	breaker := f.breaker(req.URL.Host)
	return breaker.Execute(ctx, func(ctx context.Context) (*offline.CachedResponse, error) {
		return f.do(ctx, req)
	})
}

func (f *HTTPFetcher) do(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Redacted(), err)
	}
	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{"url": req.URL.Redacted(), "status": resp.StatusCode, "bytes": len(payload)}).Debug("origin fetch")
	}
	return &offline.CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     payload,
		StoredAt: time.Now().UTC(),
	}, nil
}

// breaker returns the circuit breaker for a host, creating one if needed.
func (f *HTTPFetcher) breaker(host string) circuitbreaker.CircuitBreaker[*offline.CachedResponse] {
	f.mu.RLock()
	b, ok := f.breakers[host]
	f.mu.RUnlock()
	if ok {
		return b
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok = f.breakers[host]; ok {
		return b
	}
	threshold := uint32(f.cfg.BreakerFailures) // #nosec G115 -- positive, set in the constructor
	b = circuitbreaker.New[*offline.CachedResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    f.cfg.BreakerTimeout,
		Timeout:     f.cfg.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	f.breakers[host] = b
	return b
}

// BreakerStates reports the circuit state per host.
func (f *HTTPFetcher) BreakerStates() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.breakers))
	for host, b := range f.breakers {
		out[host] = b.State().String()
	}
	return out
}
