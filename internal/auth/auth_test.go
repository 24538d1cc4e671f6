package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/model"
)

func newManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	return m
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	m := newManager(t)

	user := model.UserContext{
		UserID:   "alice",
		TenantID: "acme",
		GroupIDs: []string{"eng", "oncall"},
	}
	token, exp, err := m.IssueToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, []string{"eng", "oncall"}, claims.GroupIDs)
	assert.Equal(t, user, claims.UserContext())
}

func TestIssueTokenRejectsInvalidUser(t *testing.T) {
	m := newManager(t)

	_, _, err := m.IssueToken(model.UserContext{TenantID: "acme"})
	assert.Error(t, err)

	_, _, err = m.IssueToken(model.UserContext{UserID: "alice"})
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := newManager(t)

	_, err := m.ValidateToken("not.a.jwt")
	assert.Error(t, err)

	_, err = m.ValidateToken("")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	issuer1 := newManager(t)
	issuer2 := newManager(t)

	token, _, err := issuer1.IssueToken(model.UserContext{UserID: "alice", TenantID: "acme"})
	require.NoError(t, err)

	_, err = issuer2.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m, err := NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := m.IssueToken(model.UserContext{UserID: "alice", TenantID: "acme"})
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSigningMethod(t *testing.T) {
	m := newManager(t)

	// HS256-signed token with otherwise plausible claims.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "shiori",
			Audience:  jwt.ClaimStrings{"shiori"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:   "alice",
		TenantID: "acme",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = m.ValidateToken(signed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "signing method")
}

func TestValidateTokenRequiresUserAndTenant(t *testing.T) {
	m := newManager(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "shiori",
			Audience:  jwt.ClaimStrings{"shiori"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "alice", // no tenant
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	require.NoError(t, err)

	_, err = m.ValidateToken(signed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing user or tenant")
}
