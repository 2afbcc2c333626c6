package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const serviceVersion = "1.2.0"

// healthCheck probes every dependency. A failing probe degrades the service
// but the worker state is reported either way.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	overall := "healthy"
	for _, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name()] = "unhealthy: " + err.Error()
			overall = "degraded"
			continue
		}
		deps[hc.Name()] = "healthy"
	}
	health := map[string]interface{}{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"version":      serviceVersion,
		"service":      "satcrack-offline",
		"dependencies": deps,
	}
	if s.controller != nil {
		health["worker"] = map[string]string{
			"state":      string(s.controller.State()),
			"generation": s.controller.Version(),
		}
	}
	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}
