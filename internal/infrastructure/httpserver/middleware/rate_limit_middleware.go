package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver/helpers"
)

// unlimitedPaths are probes and long-lived streams that never count against
// a client's window.
var unlimitedPaths = map[string]bool{
	"/health":               true,
	"/metrics":              true,
	"/api/v1/worker/events": true,
}

type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiterService
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiterService, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, logger: logger}
}

// Handler limits requests per client. Without a limiter (no redis) every
// request is allowed.
func (r *RateLimitMiddleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil || unlimitedPaths[c.Request().URL.Path] {
				return next(c)
			}
			clientKey := helpers.GetClientKey(c)

			allowed, remaining, limit, reset, rlErr := r.rateLimiter.Allow(c.Request().Context(), clientKey)
			if rlErr != nil {
				if r.logger != nil {
					r.logger.WithError(rlErr).WithField("client", clientKey).Warn("rate limiter error; allowing request (fail-open)")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				wait := int(time.Until(reset).Seconds()) + 1
				if wait < 1 {
					wait = 1
				}
				h.Set("Retry-After", strconv.Itoa(wait))
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"client": clientKey, "path": c.Request().URL.Path}).Debug("rate limit exceeded")
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
