package shared

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively; ok is false when the header is
// absent or uses another scheme.
func BearerToken(header string) (token string, ok bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token = strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// TokenEqual compares a presented token with the configured secret in
// constant time.
func TokenEqual(presented, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// ContentETag returns a strong ETag for a response body: the first 16
// bytes of its BLAKE3 digest, hex encoded and quoted.
func ContentETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// GzipETagSuffix marks the ETag of a gzip-encoded response, so that it
// differs from the identity representation's.
const GzipETagSuffix = "-gzip"

// GzipETag returns etag as rewritten for a gzip-encoded response: the
// suffix goes inside the closing quote.
func GzipETag(etag string) string {
	if i := strings.LastIndex(etag, `"`); i > 0 {
		return etag[:i] + GzipETagSuffix + etag[i:]
	}
	return etag + GzipETagSuffix
}

// ETagMatches reports whether an If-None-Match header value names etag.
func ETagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
