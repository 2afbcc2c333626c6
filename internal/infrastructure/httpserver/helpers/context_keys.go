package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
)

type ctxKey string

const (
	keyAdminClaims ctxKey = "admin_claims"
	keyClientKey   ctxKey = "client_key"
)

func SetAdminClaims(c echo.Context, claims *auth.Claims) { c.Set(string(keyAdminClaims), claims) }
func GetAdminClaimsRaw(c echo.Context) (*auth.Claims, bool) {
	v := c.Get(string(keyAdminClaims))
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func SetClientKey(c echo.Context, key string) { c.Set(string(keyClientKey), key) }
func GetClientKeyRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyClientKey))
	s, ok := v.(string)
	return s, ok && s != ""
}
