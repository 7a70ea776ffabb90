package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateHMAC produces an opaque single-use token for the subject: the
// base64url-encoded HMAC-SHA256 of the subject under the server-held secret.
// The pair (secret, subject) is deterministic; single-use semantics come from
// the cache entry the token is stored behind, not from the codec.
func GenerateHMAC(secret, subject string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(subject))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC recomputes the token for the subject and compares it in constant
// time.
func VerifyHMAC(secret, subject, token string) bool {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(subject))
	return hmac.Equal(decoded, mac.Sum(nil))
}
