package manifest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const integrityPrefix = "sha256-"

// Digest returns the sha256-<base64> integrity string of a payload.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return integrityPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyIntegrity checks payload against an integrity string. An empty
// expectation always passes.
func VerifyIntegrity(payload []byte, expected string) error {
	if expected == "" {
		return nil
	}
	if !strings.HasPrefix(expected, integrityPrefix) {
		return fmt.Errorf("unsupported integrity algorithm in %q", expected)
	}
	actual := Digest(payload)
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("integrity mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
