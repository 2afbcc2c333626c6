package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// eventsPath is streamed and must not be buffered by gzip.
const eventsPath = "/api/v1/worker/events"

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.CORSWithConfig(s.corsConfig()))
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == eventsPath || !strings.HasPrefix(c.Request().URL.Path, "/api/")
		},
	}))
	s.echo.Use(middleware.BodyLimit("4M"))

	s.echo.Use(s.middleware.Metrics.CollectHTTPMetrics())
	s.echo.Use(s.middleware.Logging.RequestLogging())
	s.echo.Use(s.middleware.RateLimit.Handler())
}

// corsConfig allows the intercepted origin to call the API from its pages.
func (s *Server) corsConfig() middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig
	if s.config.Origin != nil {
		cfg.AllowOrigins = []string{s.config.Origin.Scheme + "://" + s.config.Origin.Host}
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	cfg.ExposeHeaders = []string{"X-Offline-Strategy", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	return cfg
}
