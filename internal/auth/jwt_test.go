package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/pkg/crypto"
)

func newManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func TestTokenPair(t *testing.T) {
	m := newManager()

	access, refresh, err := m.GenerateTokenPair("ops")
	require.NoError(t, err)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, ScopeAccess, claims.Scope)

	_, err = m.ValidateToken(refresh)
	assert.Error(t, err, "refresh tokens are not accepted as access tokens")

	access2, _, err := m.RefreshToken(refresh)
	require.NoError(t, err)
	claims, err = m.ValidateToken(access2)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, _, err = m.RefreshToken(access)
	assert.Error(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	m := newManager()
	access, _, err := m.GenerateTokenPair("ops")
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{Secret: "other", AccessTokenTTL: time.Minute})
	_, err = other.ValidateToken(access)
	assert.Error(t, err)

	expired := NewJWTManager(&config.JWTConfig{Secret: "test-secret", AccessTokenTTL: -time.Minute})
	old, _, err := expired.GenerateTokenPair("ops")
	require.NoError(t, err)
	_, err = m.ValidateToken(old)
	assert.Error(t, err)

	_, err = m.ValidateToken("garbage")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	hash, err := crypto.HashPassword("pw")
	require.NoError(t, err)
	ops := []config.Operator{{Username: "ops", PasswordHash: hash}}
	m := newManager()

	name, ok := m.Authenticate(ops, "ops", "pw")
	assert.True(t, ok)
	assert.Equal(t, "ops", name)

	_, ok = m.Authenticate(ops, "ops", "nope")
	assert.False(t, ok)

	_, ok = m.Authenticate(ops, "nobody", "pw")
	assert.False(t, ok)
}
