package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30 * time.Second
	totpDigits      = 6
)

// ErrMissingSecret is returned when the OTP secret is empty.
var ErrMissingSecret = fmt.Errorf("totp secret is required")

// GenerateOTPSecret returns a fresh base32-encoded 160-bit TOTP secret. The
// secret is independent of any user data.
func GenerateOTPSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}

// GenerateTOTP computes the code for the time step containing the supplied
// moment.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	key, err := base32.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode otp secret: %w", err)
	}

	counter := uint64(at.Unix()) / uint64(totpPeriod.Seconds())
	return hotp(key, counter), nil
}

// VerifyTOTP checks the submitted code against the current 30-second time
// step only. No backward or forward drift window is accepted; a stale code
// must be re-entered against a fresh step.
func VerifyTOTP(code, secret string) (bool, error) {
	return VerifyTOTPAt(code, secret, time.Now())
}

// VerifyTOTPAt is VerifyTOTP with an explicit reference time.
func VerifyTOTPAt(code, secret string, at time.Time) (bool, error) {
	expected, err := GenerateTOTP(secret, at)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(expected)) == 1, nil
}

// OTPAuthURI renders the otpauth:// provisioning URI for authenticator apps.
func OTPAuthURI(secret, email, issuer string) string {
	return fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s&period=%d&digits=%d",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer),
		int(totpPeriod.Seconds()), totpDigits,
	)
}

// hotp implements the RFC 4226 truncated HMAC-SHA1 code for a counter value.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", totpDigits, value%mod)
}
