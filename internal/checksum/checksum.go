// Package checksum fingerprints note content for optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Of returns the hex-encoded SHA-256 digest of content.
func Of(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Matches reports whether the client supplied fingerprint want still
// describes the stored checksum current. Surrounding quotes and a weak
// validator prefix are ignored, as are differences in hex case.
func Matches(want, current string) bool {
	want = strings.TrimPrefix(strings.TrimSpace(want), "W/")
	want = strings.Trim(want, `"`)
	return strings.EqualFold(want, current)
}
