package ports

import (
	"context"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
)

// AuthService issues and validates operator tokens for the admin routes.
type AuthService interface {
	GenerateToken(ctx context.Context, subject string, ttl time.Duration) (*auth.Token, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}
