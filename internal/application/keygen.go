// Package application contains use-case orchestration services.
package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefixLive = "econ_live_"
	keyPrefixTest = "econ_test_"

	// Prefix (10) + base64url of 32 bytes (43) = 53 chars; the bounds leave
	// room for either prefix without accepting garbage.
	keyMinLength = 50
	keyMaxLength = 60

	displayPrefixLen = 12
	displaySuffixLen = 4
)

// GeneratedKey is the output of key generation. Key is the full secret and is
// surfaced to the caller exactly once; only Hash, Prefix, and Suffix are stored.
type GeneratedKey struct {
	Key    string
	Hash   string
	Prefix string
	Suffix string
}

// GenerateKey creates a new API key secret from 32 bytes of crypto/rand,
// base64url-encoded and tagged with the environment prefix.
func GenerateKey(environment string) (GeneratedKey, error) {
	prefix := keyPrefixLive
	if environment == "test" {
		prefix = keyPrefixTest
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate key material: %w", err)
	}

	key := prefix + base64.RawURLEncoding.EncodeToString(raw)

	return GeneratedKey{
		Key:    key,
		Hash:   HashKey(key),
		Prefix: key[:displayPrefixLen],
		Suffix: key[len(key)-displaySuffixLen:],
	}, nil
}

// HashKey returns the SHA-256 fingerprint of a key as lowercase hex. The
// fingerprint is what gets stored and looked up; the key itself never is.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidKeyFormat reports whether a presented key has a known environment
// prefix and a plausible length. Checked before any hashing or lookup so
// malformed input is rejected cheaply.
func ValidKeyFormat(key string) bool {
	if len(key) < keyMinLength || len(key) > keyMaxLength {
		return false
	}
	return strings.HasPrefix(key, keyPrefixLive) || strings.HasPrefix(key, keyPrefixTest)
}

// MaskKey returns the display form of a full key: first 12 characters, an
// ellipsis, and the last 4.
func MaskKey(key string) string {
	if len(key) < 20 {
		return "****"
	}
	return key[:displayPrefixLen] + "..." + key[len(key)-displaySuffixLen:]
}
