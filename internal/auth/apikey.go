package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/shiori-ai/shiori/internal/model"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey hashes an API key using Argon2id.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyAPIKey checks an API key against an Argon2id hash.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}

	expectedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computedHash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1, nil
}

// DummyVerify performs an Argon2id hash with the same cost parameters as real
// verification. Call this on auth failure paths where no real hash was checked,
// so that response timing does not reveal whether a key exists.
func DummyVerify() {
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// APIKeyEntry binds one hashed API key to the identity it authenticates as.
// Service keys carry a full user context so ACL filtering works the same as
// for interactive users.
type APIKeyEntry struct {
	Hash string
	User model.UserContext
}

// KeyStore holds the configured API keys. Immutable after construction.
type KeyStore struct {
	entries []APIKeyEntry
}

// NewKeyStore builds a store from pre-hashed entries. Entries with an invalid
// user context are rejected.
func NewKeyStore(entries []APIKeyEntry) (*KeyStore, error) {
	for _, e := range entries {
		if err := e.User.Validate(); err != nil {
			return nil, fmt.Errorf("auth: api key entry: %w", err)
		}
	}
	return &KeyStore{entries: entries}, nil
}

// Lookup verifies the presented key against every entry and returns the
// matching identity. The scan always runs at least one Argon2id computation
// so misses cost the same as hits.
func (s *KeyStore) Lookup(apiKey string) (model.UserContext, bool) {
	matched := false
	var user model.UserContext
	for _, e := range s.entries {
		ok, err := VerifyAPIKey(apiKey, e.Hash)
		if err == nil && ok && !matched {
			matched = true
			user = e.User
		}
	}
	if len(s.entries) == 0 {
		DummyVerify()
	}
	return user, matched
}
