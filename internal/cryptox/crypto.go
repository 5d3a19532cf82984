// Package cryptox implements the end-to-end encryption collaborator used by
// clipboard clients. The server never calls Encrypt/Decrypt on user data;
// this package exists so that Go clients (and tests) produce blobs
// byte-compatible with the web client's WebCrypto implementation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Parameters mirror the web client: PBKDF2-SHA256 over a fixed salt into an
// AES-256-GCM key, fresh 12-byte nonce prefixed to the ciphertext, base64.
const (
	kdfSalt       = "online-clipboard-v1"
	kdfIterations = 150000
	keyLength     = 32
	nonceLength   = 12
)

// ErrDecryptFailed is returned when a blob cannot be authenticated with the
// given secret. A wrong secret always yields this error, never wrong
// plaintext (GCM authentication).
var ErrDecryptFailed = errors.New("decrypt failed")

// DeriveSecret builds the shared secret from the two session identifiers.
// Both values are required: the code alone (e.g. read over someone's
// shoulder) is not enough to decrypt.
func DeriveSecret(code, linkToken string) string {
	return code + ":" + linkToken
}

// DeriveKey stretches the shared secret into an AES-256 key.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, keyLength, sha256.New)
}

// Encrypt seals plaintext under the secret and returns an opaque
// base64 blob. A new random nonce is generated per call, so encrypting the
// same plaintext twice yields different blobs.
func Encrypt(secret, plaintext string) (string, error) {
	aesgcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	combined := make([]byte, 0, len(nonce)+len(sealed))
	combined = append(combined, nonce...)
	combined = append(combined, sealed...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt opens an opaque blob produced by Encrypt (or the web client).
// Returns ErrDecryptFailed for a wrong secret or tampered blob.
func Decrypt(secret, blob string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	if len(combined) < nonceLength {
		return "", ErrDecryptFailed
	}

	aesgcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce, sealed := combined[:nonceLength], combined[nonceLength:]
	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
