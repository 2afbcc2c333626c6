package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver/helpers"
)

type JWTMiddleware struct {
	authService ports.AuthService
	logger      *logrus.Logger
}

func NewJWTMiddleware(authService ports.AuthService, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{authService: authService, logger: logger}
}

// RequireAdmin validates the bearer token and rejects callers without the
// admin role.
func (m *JWTMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.authService == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "admin authentication is not configured")
			}
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.authService.ValidateToken(c.Request().Context(), tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			if !claims.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}

			helpers.SetAdminClaims(c, claims)
			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"subject": claims.Subject, "role": claims.Role}).Debug("admin token validated")
			}
			return next(c)
		}
	}
}
