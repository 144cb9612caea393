package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC of the raw body, keyed by the app secret
const SignatureHeader = "X-Hub-Signature-256"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the signature in the format: sha256=<hex_encoded_hmac>
func Sign(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return "sha256=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks header against the HMAC of payload in constant time
func VerifySignature(payload []byte, header, secret string) error {
	if !strings.HasPrefix(header, "sha256=") {
		return ErrInvalidSignature
	}
	expected, err := Sign(payload, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return ErrInvalidSignature
	}
	return nil
}
