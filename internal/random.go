package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	apiKeySecretSize = 32
	sessionTokenSize = 32
	minOTPDigits     = 6
	maxOTPDigits     = 10
)

// ErrMalformedAPIKey is returned by DecodeAPIKey for any token that does not
// have the expected shape.
var ErrMalformedAPIKey = errors.New("malformed api key")

// NewOTP returns a uniformly random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// IsNumeric reports whether s is non-empty and all ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// HashValue returns the SHA-256 digest of v.
func HashValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}

// NewAPIKeySecret returns 32 random bytes, base64url encoded without padding.
func NewAPIKeySecret() (string, error) {
	var raw [apiKeySecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// EncodeAPIKey builds "<prefix>_<32 hex key id>_<secret>".
func EncodeAPIKey(prefix string, keyID uuid.UUID, secret string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 2 + 32 + len(secret))
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(hex.EncodeToString(keyID[:]))
	b.WriteByte('_')
	b.WriteString(secret)
	return b.String()
}

// DecodeAPIKey splits a token produced by EncodeAPIKey. The key id is
// returned in canonical uuid form.
func DecodeAPIKey(prefix, token string) (keyID string, secret string, err error) {
	rest, ok := strings.CutPrefix(token, prefix+"_")
	if !ok {
		return "", "", ErrMalformedAPIKey
	}
	idHex, secret, ok := strings.Cut(rest, "_")
	if !ok || len(idHex) != 32 {
		return "", "", ErrMalformedAPIKey
	}

	raw, err := hex.DecodeString(idHex)
	if err != nil {
		return "", "", ErrMalformedAPIKey
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", "", ErrMalformedAPIKey
	}

	decoded, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(decoded) != apiKeySecretSize {
		return "", "", ErrMalformedAPIKey
	}
	return id.String(), secret, nil
}

// NewSessionToken returns an opaque base64url session token.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// SessionID derives the stored session identifier from a token.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
