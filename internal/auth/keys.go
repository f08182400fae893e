// Package auth protects the ops API with bearer API keys. Keys are
// random tokens; only their bcrypt hashes are configured.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/qadhya/drivesync/internal/config"
)

// APIKeyPrefix marks drivesync ops API keys.
const APIKeyPrefix = "ds_"

const apiKeyBytes = 24

// Keys verifies bearer tokens against the configured key hashes.
type Keys struct {
	entries []config.APIKeyEntry
}

// NewKeys creates a verifier over the parsed OPS_API_KEYS entries.
func NewKeys(entries []config.APIKeyEntry) *Keys {
	return &Keys{entries: entries}
}

// Len returns the number of configured keys.
func (k *Keys) Len() int {
	if k == nil {
		return 0
	}
	return len(k.entries)
}

// Verify returns the user owning token. Tokens without the key prefix
// are rejected before any hash comparison.
func (k *Keys) Verify(token string) (string, bool) {
	if k == nil || !strings.HasPrefix(token, APIKeyPrefix) {
		return "", false
	}

	for _, e := range k.entries {
		if bcrypt.CompareHashAndPassword([]byte(e.Hash), []byte(token)) == nil {
			return e.UserID, true
		}
	}

	return "", false
}

// GenerateKey returns a new API key and its bcrypt hash.
func GenerateKey() (key, hash string, err error) {
	key = APIKeyPrefix + RandomHex(apiKeyBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	return key, string(h), nil
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
