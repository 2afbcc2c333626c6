package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// RequestLogging logs every request once it has been served.
func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if m.logger != nil {
				fields := logrus.Fields{
					"method":     c.Request().Method,
					"path":       c.Request().URL.Path,
					"route":      c.Path(),
					"status":     c.Response().Status,
					"latency_ms": time.Since(start).Milliseconds(),
					"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				}
				if err != nil {
					m.logger.WithFields(fields).WithError(err).Debug("request failed")
				} else {
					m.logger.WithFields(fields).Debug("request served")
				}
			}
			return err
		}
	}
}
