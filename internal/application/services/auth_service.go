package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/avatarctic/satcrack-offline/configs"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// ErrAdminAuthDisabled is returned when no signing secret is configured.
var ErrAdminAuthDisabled = errors.New("admin authentication is not configured")

type AuthService struct {
	adminConfig *config.AdminConfig
	logger      *logrus.Logger
	now         func() time.Time
}

func NewAuthService(adminConfig *config.AdminConfig, logger *logrus.Logger) *AuthService {
	if adminConfig == nil {
		adminConfig = &config.AdminConfig{}
	}
	return &AuthService{adminConfig: adminConfig, logger: logger, now: time.Now}
}

// GenerateToken signs an admin token for subject. A zero ttl uses the
// configured token lifetime.
func (s *AuthService) GenerateToken(ctx context.Context, subject string, ttl time.Duration) (*auth.Token, error) {
	if s.adminConfig.JWTSecret == "" {
		return nil, ErrAdminAuthDisabled
	}
	if ttl <= 0 {
		ttl = s.adminConfig.TokenTTL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := s.now()

	claims := &auth.Claims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.adminConfig.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"subject": subject, "ttl": ttl.String()}).Info("admin token issued")
	}

	return &auth.Token{
		AccessToken: signed,
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if s.adminConfig.JWTSecret == "" {
		return nil, ErrAdminAuthDisabled
	}
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.adminConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*auth.Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
