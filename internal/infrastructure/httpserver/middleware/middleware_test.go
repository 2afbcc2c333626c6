package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver/helpers"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver/middleware"
	tmocks "github.com/avatarctic/satcrack-offline/test/mocks"
)

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func httpCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	htErr, isHTTP := err.(*echo.HTTPError)
	require.True(t, isHTTP)
	return htErr.Code
}

func TestRequireAdmin_MissingTokenReturns401(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(&tmocks.AuthServiceMock{}, logrus.New())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	require.Equal(t, http.StatusUnauthorized, httpCode(t, m.RequireAdmin()(ok)(c)))
}

func TestRequireAdmin_InvalidTokenReturns401(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(&tmocks.AuthServiceMock{}, logrus.New())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	c := e.NewContext(req, httptest.NewRecorder())

	require.Equal(t, http.StatusUnauthorized, httpCode(t, m.RequireAdmin()(ok)(c)))
}

func TestRequireAdmin_NonAdminReturns403(t *testing.T) {
	e := echo.New()
	authMock := &tmocks.AuthServiceMock{ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
		return &auth.Claims{Role: "viewer"}, nil
	}}
	m := middleware.NewJWTMiddleware(authMock, logrus.New())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer t")
	c := e.NewContext(req, httptest.NewRecorder())

	require.Equal(t, http.StatusForbidden, httpCode(t, m.RequireAdmin()(ok)(c)))
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	e := echo.New()
	authMock := &tmocks.AuthServiceMock{ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
		require.Equal(t, "good", token)
		return &auth.Claims{Role: auth.RoleAdmin}, nil
	}}
	m := middleware.NewJWTMiddleware(authMock, logrus.New())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, m.RequireAdmin()(ok)(c))
	require.Equal(t, http.StatusOK, rec.Code)
	claims, err := helpers.GetAdminClaimsFromContext(c)
	require.NoError(t, err)
	require.True(t, claims.IsAdmin())
}

func TestRequireAdmin_DisabledWithoutAuthService(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(nil, nil)
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())

	require.Equal(t, http.StatusServiceUnavailable, httpCode(t, m.RequireAdmin()(ok)(c)))
}

func TestRateLimit_SetsHeadersAndRejects(t *testing.T) {
	e := echo.New()
	reset := time.Unix(1700000000, 0)
	var keys []string
	limiter := &tmocks.RateLimiterServiceMock{AllowFn: func(ctx context.Context, clientKey string) (bool, int, int, time.Time, error) {
		keys = append(keys, clientKey)
		return len(keys) < 2, 2 - len(keys), 2, reset, nil
	}}
	h := middleware.NewRateLimitMiddleware(limiter, logrus.New()).Handler()(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "1700000000", rec.Header().Get("X-RateLimit-Reset"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	require.Equal(t, http.StatusTooManyRequests, httpCode(t, h(e.NewContext(req, httptest.NewRecorder()))))
	require.Equal(t, []string{"10.1.2.3", "10.1.2.3"}, keys)
}

func TestRateLimit_ExplicitClientKey(t *testing.T) {
	e := echo.New()
	var got string
	limiter := &tmocks.RateLimiterServiceMock{AllowFn: func(ctx context.Context, clientKey string) (bool, int, int, time.Time, error) {
		got = clientKey
		return true, 1, 1, time.Now(), nil
	}}
	h := middleware.NewRateLimitMiddleware(limiter, nil).Handler()(ok)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	helpers.SetClientKey(c, "device-42")

	require.NoError(t, h(c))
	require.Equal(t, "device-42", got)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	e := echo.New()
	limiter := &tmocks.RateLimiterServiceMock{AllowFn: func(ctx context.Context, clientKey string) (bool, int, int, time.Time, error) {
		return false, 0, 0, time.Time{}, errors.New("redis down")
	}}
	h := middleware.NewRateLimitMiddleware(limiter, nil).Handler()(ok)
	rec := httptest.NewRecorder()

	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NoLimiterPassesThrough(t *testing.T) {
	e := echo.New()
	h := middleware.NewRateLimitMiddleware(nil, nil).Handler()(ok)
	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())))
}

func TestRateLimit_SkipsProbesAndStreams(t *testing.T) {
	e := echo.New()
	calls := 0
	limiter := &tmocks.RateLimiterServiceMock{AllowFn: func(ctx context.Context, clientKey string) (bool, int, int, time.Time, error) {
		calls++
		return false, 0, 1, time.Now().Add(time.Minute), nil
	}}
	h := middleware.NewRateLimitMiddleware(limiter, nil).Handler()(ok)

	for _, path := range []string{"/health", "/metrics", "/api/v1/worker/events"} {
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)), path)
	}
	require.Zero(t, calls)

	rec := httptest.NewRecorder()
	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/practice.html", nil), rec))
	require.Equal(t, http.StatusTooManyRequests, httpCode(t, err))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
