// Package security provides the secret box used to keep notification
// channel settings encrypted at rest.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 10000
	keyLength     = 32
)

// keySalt pins key derivation for this installation. Rotating it
// invalidates every stored ciphertext.
var keySalt = []byte("audiocove-monitoring-v1")

// EncryptionService encrypts and decrypts short strings with AES-GCM
// under a PBKDF2-derived key.
type EncryptionService struct {
	key []byte
}

// NewEncryptionService derives the cipher key from the configured
// passphrase.
func NewEncryptionService(passphrase string) *EncryptionService {
	return &EncryptionService{
		key: pbkdf2.Key([]byte(passphrase), keySalt, keyIterations, keyLength, sha256.New),
	}
}

// Encrypt seals plaintext with AES-GCM and a random nonce and returns
// the result base64-encoded. An empty plaintext round-trips as "".
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails when the ciphertext was produced
// under a different key or has been tampered with.
func (e *EncryptionService) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}
