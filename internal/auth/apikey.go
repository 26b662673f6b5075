package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey returns a new raw tenant bearer credential: the literal
// prefix "sms_" followed by 64 hex characters (32 random bytes). The raw
// value is returned to the caller exactly once; only HashKey's digest of it
// is persisted.
func GenerateAPIKey() (raw string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "sms_" + hex.EncodeToString(buf), nil
}

// KeyLast4 returns the last 4 characters of a raw key, stored alongside its
// hash so operators can recognize a key in listings without the plaintext.
func KeyLast4(raw string) string {
	if len(raw) < 4 {
		return raw
	}
	return raw[len(raw)-4:]
}
