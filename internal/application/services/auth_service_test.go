package services_test

import (
	"context"
	"testing"
	"time"

	config "github.com/avatarctic/satcrack-offline/configs"
	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestAuthService_GenerateAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := services.NewAuthService(&config.AdminConfig{JWTSecret: "s3cret", TokenTTL: 30 * time.Minute}, nil)

	token, err := svc.GenerateToken(ctx, "operator", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1800), token.ExpiresIn)

	claims, err := svc.ValidateToken(ctx, token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "operator", claims.Subject)
	require.True(t, claims.IsAdmin())
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc := services.NewAuthService(&config.AdminConfig{JWTSecret: "s3cret"}, nil)
	other := services.NewAuthService(&config.AdminConfig{JWTSecret: "different"}, nil)

	token, err := other.GenerateToken(ctx, "operator", time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, token.AccessToken)
	require.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.Claims{Role: auth.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, unsigned)
	require.Error(t, err)

	_, err = svc.ValidateToken(ctx, "not-a-token")
	require.Error(t, err)
}

func TestAuthService_RejectsExpiredTokens(t *testing.T) {
	ctx := context.Background()
	secret := "s3cret"
	svc := services.NewAuthService(&config.AdminConfig{JWTSecret: secret}, nil)

	past := time.Now().Add(-2 * time.Hour)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(past),
		},
	})
	signed, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, signed)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthService_DisabledWithoutSecret(t *testing.T) {
	ctx := context.Background()
	svc := services.NewAuthService(nil, nil)

	_, err := svc.GenerateToken(ctx, "operator", time.Minute)
	require.ErrorIs(t, err, services.ErrAdminAuthDisabled)
	_, err = svc.ValidateToken(ctx, "anything")
	require.ErrorIs(t, err, services.ErrAdminAuthDisabled)
}
