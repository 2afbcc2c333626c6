package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
)

func GetAdminClaimsFromContext(c echo.Context) (*auth.Claims, error) {
	claims, ok := GetAdminClaimsRaw(c)
	if !ok || claims == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid admin context")
	}
	return claims, nil
}

// GetClientKey identifies the calling client for rate limiting: an explicit
// key set by earlier middleware, otherwise the client IP.
func GetClientKey(c echo.Context) string {
	if key, ok := GetClientKeyRaw(c); ok {
		return key
	}
	return c.RealIP()
}

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}
