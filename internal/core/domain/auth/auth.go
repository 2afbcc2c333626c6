package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin may import question banks, clear caches and drive the worker lifecycle.
const RoleAdmin = "admin"

// Claims represents the JWT claims carried by operator tokens
type Claims struct {
	Role string `json:"role"`

	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims grant administrative access.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Token is the response body of the token command.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
