package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/width"
)

// Normalize prepares text for fingerprinting: fullwidth punctuation is folded
// to its ASCII form, whitespace runs collapse to a single space, and the
// result is trimmed. Logically identical content normalizes identically even
// when the source differs in spacing or punctuation width.
func Normalize(text string) string {
	folded := width.Narrow.String(text)
	return strings.Join(strings.Fields(folded), " ")
}

// Fingerprint returns the hex-encoded SHA-256 digest of the normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// ShortFingerprint returns the first 16 hex characters of Fingerprint, enough
// for log lines and human-facing identifiers.
func ShortFingerprint(text string) string {
	return Fingerprint(text)[:16]
}
