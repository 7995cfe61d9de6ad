package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

func TestAuthServiceIssueAndValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "gym"})

	token, err := svc.IssueToken(models.JWTClaims{UserID: "user-1", LeadID: "lead-1", Role: models.RoleStudent}, time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "lead-1", claims.LeadID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "gym", claims.Issuer)
}

func TestAuthServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})

	expired, err := svc.IssueToken(models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other"})
	foreign, err := other.IssueToken(models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsTokenWithoutRole(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "user-1"})
	signed, err := raw.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
