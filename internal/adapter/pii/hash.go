package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashField pseudonymizes a single identity field the way the Conversions API
// expects: trim, lower-case, SHA-256 over the UTF-8 bytes, lowercase hex.
// Empty or whitespace-only input yields "" so the field is omitted downstream
// instead of being sent as the hash of an empty string. No salt; the vendor
// deduplicates by exact hash match, so equal logical identities must always
// hash identically across processes and restarts.
func HashField(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail applies the same trim+lower normalization used before
// hashing. Pending event-id cache keys use it so a lookup by
// "A@Example.com " finds an entry stored under "a@example.com".
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
