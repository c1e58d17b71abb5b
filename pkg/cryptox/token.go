package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenSize256 is the byte length of API, CSRF and reset tokens (64 hex chars).
const TokenSize256 = 32

// TokenPrefixLength is how much of a token is kept in clear for display.
const TokenPrefixLength = 8

// GenerateHexToken returns size random bytes, hex encoded.
func GenerateHexToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 of token. Only this value is stored, so a
// leaked database does not leak usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenPrefix returns the leading characters of a token for display.
func TokenPrefix(token string) string {
	if len(token) <= TokenPrefixLength {
		return token
	}
	return token[:TokenPrefixLength]
}

// EqualTokens compares two secrets in constant time. Empty values never match.
func EqualTokens(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
