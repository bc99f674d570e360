package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Marketplace-Signature"
	signaturePrefix = "sha256="
)

// Sign returns the header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" header against the raw body.
// An empty secret or header never verifies.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	received := strings.ToLower(strings.TrimSpace(header))
	if !strings.HasPrefix(received, signaturePrefix) {
		return false
	}
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
