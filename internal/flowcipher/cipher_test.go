package flowcipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func plainPEM(t *testing.T) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey(t)),
	})
}

func encryptedPKCS8PEM(t *testing.T, passphrase string) []byte {
	t.Helper()
	der, err := pkcs8.ConvertPrivateKeyToPKCS8(rsaKey(t), []byte(passphrase))
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})
}

func legacyEncryptedPEM(t *testing.T, passphrase string) []byte {
	t.Helper()
	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey(t)), []byte(passphrase), x509.PEMCipherAES128)
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// sealRequest builds a request the way the WhatsApp client does.
func sealRequest(t *testing.T, pub *rsa.PublicKey, doc any, aesKey, iv []byte) EncryptedRequest {
	t.Helper()

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	require.NoError(t, err)

	plain, err := json.Marshal(doc)
	require.NoError(t, err)

	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	require.NoError(t, err)

	return EncryptedRequest{
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
		EncryptedFlowData: base64.StdEncoding.EncodeToString(gcm.Seal(nil, iv, plain, nil)),
		InitialVector:     base64.StdEncoding.EncodeToString(iv),
	}
}

func TestDecrypt_RoundTrip(t *testing.T) {
	keys := map[string]struct {
		pem        []byte
		passphrase string
	}{
		"plain pkcs1":     {plainPEM(t), ""},
		"encrypted pkcs8": {encryptedPKCS8PEM(t, "s3cret"), "s3cret"},
		"legacy openssl":  {legacyEncryptedPEM(t, "s3cret"), "s3cret"},
	}

	doc := map[string]any{
		"version": "3.0",
		"action":  "data_exchange",
		"screen":  "RENT_DETAILS",
		"data":    map[string]any{"unit": "B4", "amount": float64(150000)},
	}

	for name, k := range keys {
		t.Run(name, func(t *testing.T) {
			aesKey := randomBytes(t, KeySize)
			iv := randomBytes(t, IVSize)
			req := sealRequest(t, &rsaKey(t).PublicKey, doc, aesKey, iv)

			got, err := Decrypt(req, k.pem, k.passphrase)
			require.NoError(t, err)

			assert.Equal(t, doc, got.Plaintext)
			assert.Equal(t, aesKey, got.AESKey)
			assert.Equal(t, iv, got.IV)
		})
	}
}

func TestEncrypt_UsesFlippedIV(t *testing.T) {
	aesKey := randomBytes(t, KeySize)
	iv := randomBytes(t, IVSize)
	response := map[string]any{"screen": "SUCCESS", "data": map[string]any{"ok": true}}

	body, err := Encrypt(response, aesKey, iv)
	require.NoError(t, err)

	sealed, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)

	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	require.NoError(t, err)

	_, err = gcm.Open(nil, iv, sealed, nil)
	assert.Error(t, err, "response must not be sealed under the request IV")

	plain, err := gcm.Open(nil, FlipIV(iv), sealed, nil)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(plain, &got))
	assert.Equal(t, "SUCCESS", got["screen"])
}

func TestFlipIV_SelfInverse(t *testing.T) {
	for i := 0; i < 100; i++ {
		iv := randomBytes(t, 1+i%32)
		flipped := FlipIV(iv)
		assert.False(t, bytes.Equal(iv, flipped))
		assert.Equal(t, iv, FlipIV(flipped))
	}
	assert.Empty(t, FlipIV(nil))
}

func TestDecrypt_TamperedKeyIsCryptoFailure(t *testing.T) {
	req := sealRequest(t, &rsaKey(t).PublicKey, map[string]any{"action": "ping"}, randomBytes(t, KeySize), randomBytes(t, IVSize))

	wrapped, err := base64.StdEncoding.DecodeString(req.EncryptedAESKey)
	require.NoError(t, err)
	flipped := append([]byte(nil), wrapped...)
	flipped[10] ^= 0xFF

	truncated := req.EncryptedAESKey[:len(req.EncryptedAESKey)-5]

	for name, key := range map[string]string{
		"flipped byte":  base64.StdEncoding.EncodeToString(flipped),
		"truncated":     truncated,
		"short decoded": base64.StdEncoding.EncodeToString(wrapped[:len(wrapped)-4]),
	} {
		t.Run(name, func(t *testing.T) {
			tampered := req
			tampered.EncryptedAESKey = key

			_, err := Decrypt(tampered, plainPEM(t), "")
			require.Error(t, err)
			assert.True(t, IsCryptoFailure(err))

			var ce *CryptoError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StageUnwrapKey, ce.Stage)
		})
	}
}

func TestDecrypt_WrongPassphraseIsCryptoFailure(t *testing.T) {
	req := sealRequest(t, &rsaKey(t).PublicKey, map[string]any{"action": "ping"}, randomBytes(t, KeySize), randomBytes(t, IVSize))

	_, err := Decrypt(req, encryptedPKCS8PEM(t, "right"), "wrong")
	require.Error(t, err)

	var ce *CryptoError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageLoadKey, ce.Stage)
}

func TestDecrypt_TamperedPayloadIsCryptoFailure(t *testing.T) {
	req := sealRequest(t, &rsaKey(t).PublicKey, map[string]any{"action": "ping"}, randomBytes(t, KeySize), randomBytes(t, IVSize))

	data, err := base64.StdEncoding.DecodeString(req.EncryptedFlowData)
	require.NoError(t, err)
	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0x01

	for name, payload := range map[string]string{
		"flipped tag":     base64.StdEncoding.EncodeToString(flipped),
		"bad base64":      "%%%not-base64%%%",
		"tag-only buffer": base64.StdEncoding.EncodeToString(data[:TagSize]),
	} {
		t.Run(name, func(t *testing.T) {
			tampered := req
			tampered.EncryptedFlowData = payload

			_, err := Decrypt(tampered, plainPEM(t), "")
			var ce *CryptoError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StageOpenPayload, ce.Stage)
		})
	}
}

func TestDecrypt_ValidationFailures(t *testing.T) {
	valid := sealRequest(t, &rsaKey(t).PublicKey, map[string]any{"action": "ping"}, randomBytes(t, KeySize), randomBytes(t, IVSize))

	shortIV := valid
	shortIV.InitialVector = base64.StdEncoding.EncodeToString(randomBytes(t, 12))

	missingKey := valid
	missingKey.EncryptedAESKey = ""

	missingData := valid
	missingData.EncryptedFlowData = ""

	badIV := valid
	badIV.InitialVector = "%%%not-base64%%%"

	for name, req := range map[string]EncryptedRequest{
		"short iv":     shortIV,
		"missing key":  missingKey,
		"missing data": missingData,
		"bad iv":       badIV,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decrypt(req, plainPEM(t), "")
			require.Error(t, err)

			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.False(t, IsCryptoFailure(err))
		})
	}
}

func TestEncrypt_RejectsBadKeyMaterial(t *testing.T) {
	_, err := Encrypt(map[string]any{}, randomBytes(t, 32), randomBytes(t, IVSize))
	assert.Error(t, err)

	_, err = Encrypt(map[string]any{}, randomBytes(t, KeySize), randomBytes(t, 12))
	assert.Error(t, err)
}

func TestParsePrivateKey_RejectsGarbage(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not a key"), "")
	assert.Error(t, err)
}
