// Package flowcipher implements the WhatsApp Flows data-exchange encryption:
// an RSA-OAEP(SHA-256) wrapped AES-128 key and AES-128-GCM payloads with a
// 16-byte nonce, the response being sealed under the bitwise complement of
// the request IV.
package flowcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// IVSize is the GCM nonce length mandated by the Flow protocol.
	IVSize = 16
	// TagSize is the GCM authentication tag appended to every ciphertext.
	TagSize = 16
	// KeySize is the AES-128 key length.
	KeySize = 16
)

// EncryptedRequest is the JSON body of an inbound Flow data-exchange request
type EncryptedRequest struct {
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	EncryptedFlowData string `json:"encrypted_flow_data"`
	InitialVector     string `json:"initial_vector"`
}

// DecryptedRequest holds the opened payload and the single-use key material
// needed to seal the response to the same request.
type DecryptedRequest struct {
	Plaintext map[string]any
	AESKey    []byte
	IV        []byte
}

// Decrypt opens an inbound Flow request.
func Decrypt(req EncryptedRequest, privateKeyPEM []byte, passphrase string) (*DecryptedRequest, error) {
	// Corrupted key or payload bytes are reported as crypto failures so the
	// client refreshes the public key. Only absent fields and the IV are
	// validation errors.
	wrappedKey, err := decodeField("encrypted_aes_key", req.EncryptedAESKey, StageUnwrapKey)
	if err != nil {
		return nil, err
	}
	flowData, err := decodeField("encrypted_flow_data", req.EncryptedFlowData, StageOpenPayload)
	if err != nil {
		return nil, err
	}
	iv, err := decodeField("initial_vector", req.InitialVector, "")
	if err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, &ValidationError{Field: "initial_vector", Message: fmt.Sprintf("must be %d bytes, got %d", IVSize, len(iv))}
	}
	if len(flowData) <= TagSize {
		return nil, &CryptoError{Stage: StageOpenPayload, Err: fmt.Errorf("payload of %d bytes is not longer than the %d-byte tag", len(flowData), TagSize)}
	}

	privateKey, err := ParsePrivateKey(privateKeyPEM, passphrase)
	if err != nil {
		return nil, &CryptoError{Stage: StageLoadKey, Err: err}
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, privateKey, wrappedKey, nil)
	if err != nil {
		return nil, &CryptoError{Stage: StageUnwrapKey, Err: err}
	}
	if len(aesKey) != KeySize {
		return nil, &CryptoError{Stage: StageUnwrapKey, Err: fmt.Errorf("unwrapped key is %d bytes, want %d", len(aesKey), KeySize)}
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, &CryptoError{Stage: StageOpenPayload, Err: err}
	}

	// flowData is ciphertext followed by the 16-byte tag, which is the
	// framing cipher.AEAD.Open expects.
	plain, err := gcm.Open(nil, iv, flowData, nil)
	if err != nil {
		return nil, &CryptoError{Stage: StageOpenPayload, Err: err}
	}

	var doc map[string]any
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, &ValidationError{Field: "encrypted_flow_data", Message: "decrypted payload is not a JSON object"}
	}

	return &DecryptedRequest{
		Plaintext: doc,
		AESKey:    aesKey,
		IV:        iv,
	}, nil
}

// Encrypt seals a response for the request that produced aesKey and iv and
// returns the base64 string that is written verbatim as the HTTP body.
func Encrypt(response any, aesKey, iv []byte) (string, error) {
	if len(aesKey) != KeySize {
		return "", fmt.Errorf("aes key must be %d bytes, got %d", KeySize, len(aesKey))
	}
	if len(iv) != IVSize {
		return "", fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}

	plain, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal flow response: %w", err)
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, FlipIV(iv), plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns the bitwise complement of every byte of iv. Applying it
// twice yields the original IV.
func FlipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = ^b
	}
	return flipped
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// decodeField decodes a base64 request field. A decode failure is a
// CryptoError at stage when stage is set, a ValidationError otherwise.
func decodeField(name, value, stage string) ([]byte, error) {
	if value == "" {
		return nil, &ValidationError{Field: name, Message: "is required"}
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		if stage != "" {
			return nil, &CryptoError{Stage: stage, Err: fmt.Errorf("%s is not valid base64: %w", name, err)}
		}
		return nil, &ValidationError{Field: name, Message: "is not valid base64"}
	}
	return b, nil
}
