package mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
)

// KVBackendMock is a map-backed KVBackend whose operations can be overridden
// per test.
type KVBackendMock struct {
	GetFn    func(ctx context.Context, key string) ([]byte, bool, error)
	SetFn    func(ctx context.Context, key string, value []byte) error
	DeleteFn func(ctx context.Context, key string) error

	mu   sync.Mutex
	data map[string][]byte
}

func (m *KVBackendMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *KVBackendMock) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value)
	}
	m.Put(key, value)
	return nil
}
func (m *KVBackendMock) Delete(ctx context.Context, key string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Put writes directly to the backing map, bypassing SetFn.
func (m *KVBackendMock) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = append([]byte(nil), value...)
}

// Raw reads directly from the backing map, bypassing GetFn.
func (m *KVBackendMock) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Keys returns the number of stored keys.
func (m *KVBackendMock) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// FetcherMock records requests and answers them with FetchFn or a canned
// response per URL.
type FetcherMock struct {
	FetchFn   func(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error)
	Responses map[string]*offline.CachedResponse

	mu    sync.Mutex
	calls []string
}

func (m *FetcherMock) Fetch(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Key())
	m.mu.Unlock()
	if m.FetchFn != nil {
		return m.FetchFn(ctx, req)
	}
	if resp, ok := m.Responses[req.Key()]; ok {
		return resp.Clone(), nil
	}
	return nil, fmt.Errorf("network unavailable: %s", req.Key())
}

// Calls returns the fetched URLs in order.
func (m *FetcherMock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how often key was fetched.
func (m *FetcherMock) CallCount(key string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == key {
			n++
		}
	}
	return n
}

// QuestionSourceMock is a lightweight mock for QuestionSource
type QuestionSourceMock struct {
	NameValue   string
	FetchBankFn func(ctx context.Context) (question.Bank, error)
	Calls       int
}

func (m *QuestionSourceMock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}
func (m *QuestionSourceMock) FetchBank(ctx context.Context) (question.Bank, error) {
	m.Calls++
	if m.FetchBankFn != nil {
		return m.FetchBankFn(ctx)
	}
	return nil, errors.New("source unavailable")
}

// ClientNotifierMock records broadcast messages.
type ClientNotifierMock struct {
	ClientCount int
	mu          sync.Mutex
	Messages    []offline.Message
}

func (m *ClientNotifierMock) Broadcast(ctx context.Context, msg offline.Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return m.ClientCount
}
func (m *ClientNotifierMock) Clients() int { return m.ClientCount }

// OfflineMetricsMock counts observations.
type OfflineMetricsMock struct {
	mu            sync.Mutex
	Sources       []string
	WriteFailures int
	Fallbacks     []string
}

func (m *OfflineMetricsMock) ObserveFetch(strategy offline.Strategy, source string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sources = append(m.Sources, source)
}
func (m *OfflineMetricsMock) CacheWriteFailed(strategy offline.Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteFailures++
}
func (m *OfflineMetricsMock) StorageFallback(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fallbacks = append(m.Fallbacks, op)
}

// AuthServiceMock is a lightweight mock for AuthService
type AuthServiceMock struct {
	GenerateTokenFn func(ctx context.Context, subject string, ttl time.Duration) (*auth.Token, error)
	ValidateTokenFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *AuthServiceMock) GenerateToken(ctx context.Context, subject string, ttl time.Duration) (*auth.Token, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, subject, ttl)
	}
	return &auth.Token{AccessToken: "token", ExpiresIn: int64(ttl.Seconds())}, nil
}
func (m *AuthServiceMock) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, token)
	}
	return nil, fmt.Errorf("invalid token")
}

// RateLimitRepositoryMock is a lightweight mock for RateLimitRepository
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, clientKey string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, clientKey string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, clientKey, window, keyPrefix, ttl)
	}
	return 1, time.Now(), nil
}

// RateLimiterServiceMock is a lightweight mock for RateLimiterService
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, clientKey string) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, clientKey string) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, clientKey)
	}
	return true, 10, 10, time.Now().Add(time.Minute), nil
}

// BankDecoderMock decodes a bank as plain JSON without schema checks.
type BankDecoderMock struct {
	DecodeBankFn func(r io.Reader) (question.Bank, error)
}

func (m *BankDecoderMock) DecodeBank(r io.Reader) (question.Bank, error) {
	if m.DecodeBankFn != nil {
		return m.DecodeBankFn(r)
	}
	return nil, question.ErrInvalidBank
}

// ActivityLog builds an activity slice from section/topic pairs.
func ActivityLog(pairs ...string) []cache.Activity {
	out := make([]cache.Activity, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, cache.Activity{Section: pairs[i], Topic: pairs[i+1]})
	}
	return out
}
