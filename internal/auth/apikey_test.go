package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/model"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := HashAPIKey("sk-test-123")
	require.NoError(t, err)
	assert.NotContains(t, hash, "sk-test-123")

	ok, err := VerifyAPIKey("sk-test-123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("sk-wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashAPIKeyUniqueSalts(t *testing.T) {
	h1, err := HashAPIKey("sk-test-123")
	require.NoError(t, err)
	h2, err := HashAPIKey("sk-test-123")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyAPIKeyMalformedHash(t *testing.T) {
	_, err := VerifyAPIKey("sk-test-123", "no-dollar-sign")
	assert.Error(t, err)

	_, err = VerifyAPIKey("sk-test-123", "!!!$!!!")
	assert.Error(t, err)
}

func TestKeyStoreLookup(t *testing.T) {
	hash, err := HashAPIKey("sk-ci-bot")
	require.NoError(t, err)

	store, err := NewKeyStore([]APIKeyEntry{{
		Hash: hash,
		User: model.UserContext{UserID: "ci-bot", TenantID: "acme", GroupIDs: []string{"bots"}},
	}})
	require.NoError(t, err)

	user, ok := store.Lookup("sk-ci-bot")
	require.True(t, ok)
	assert.Equal(t, "ci-bot", user.UserID)
	assert.Equal(t, "acme", user.TenantID)

	_, ok = store.Lookup("sk-unknown")
	assert.False(t, ok)
}

func TestKeyStoreRejectsInvalidEntry(t *testing.T) {
	hash, err := HashAPIKey("sk-ci-bot")
	require.NoError(t, err)

	_, err = NewKeyStore([]APIKeyEntry{{
		Hash: hash,
		User: model.UserContext{UserID: "ci-bot"}, // no tenant
	}})
	assert.Error(t, err)
}

func TestKeyStoreEmpty(t *testing.T) {
	store, err := NewKeyStore(nil)
	require.NoError(t, err)
	_, ok := store.Lookup("anything")
	assert.False(t, ok)
}
