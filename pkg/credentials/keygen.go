package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix identifies API keys issued by this service.
	KeyPrefix = "kv_"
	// keyRandomBytes is the entropy of the secret (32 bytes = 256 bits).
	keyRandomBytes = 32
)

// KeyGenerator generates and hashes API-key secrets.
type KeyGenerator struct{}

// NewKeyGenerator creates a new key generator.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// Generate creates a new API-key secret.
// Format: kv_<base64url(32 random bytes)>. Returns the full secret (shown
// to the caller exactly once), its SHA-256 hash for storage, and a short
// display prefix for identification.
func (g *KeyGenerator) Generate() (secret, secretHash, displayPrefix string, err error) {
	randomBytes := make([]byte, keyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	full := KeyPrefix + encoded

	prefix := KeyPrefix
	if len(encoded) >= 8 {
		prefix = KeyPrefix + encoded[:8]
	}

	return full, g.Hash(full), prefix, nil
}

// Hash computes the SHA-256 hex digest of a secret for lookup. The
// plaintext secret is never stored.
func (g *KeyGenerator) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ValidateFormat checks that a presented secret has the expected shape
// before any store lookup happens.
func (g *KeyGenerator) ValidateFormat(secret string) error {
	if !strings.HasPrefix(secret, KeyPrefix) {
		return fmt.Errorf("api key must start with %q", KeyPrefix)
	}
	encoded := strings.TrimPrefix(secret, KeyPrefix)
	if encoded == "" {
		return fmt.Errorf("api key is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid api key encoding: %w", err)
	}
	return nil
}
