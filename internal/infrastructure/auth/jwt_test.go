package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService(t *testing.T) {
	service := NewJWTService("test-secret", "inkflow", time.Hour)

	t.Run("round-trips claims", func(t *testing.T) {
		tenantID := uuid.New()
		token, err := service.GenerateAccessToken(tenantID, "owner@acme.test")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := service.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, tenantID.String(), claims.TenantID)
		assert.Equal(t, "owner@acme.test", claims.Email)
		assert.Equal(t, "inkflow", claims.Issuer)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		expired := &JWTService{secret: []byte("test-secret"), issuer: "inkflow", expiration: -time.Hour}
		token, err := expired.GenerateAccessToken(uuid.New(), "owner@acme.test")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		other := NewJWTService("other-secret", "inkflow", time.Hour)
		token, err := other.GenerateAccessToken(uuid.New(), "owner@acme.test")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
