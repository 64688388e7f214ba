// Package security guards the secret fields of credentials.json. Encryption
// at rest is optional: with ENGINE_CREDENTIALS_KEY unset the file is read as
// plaintext, logged once, so the engine still starts in a bare development
// checkout.
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
	pbkdf2Iterations = 10000
	keyLength        = 32
)

// Cipher encrypts and decrypts individual credential fields with AES-256-GCM
// keyed by a PBKDF2-derived key.
type Cipher struct {
	key []byte
}

// NewCipher derives a Cipher's key from a passphrase and a per-deployment
// salt. The salt need not be secret, only stable across restarts — it is
// typically the deployment's app name.
func NewCipher(passphrase, salt string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("empty encryption passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, keyLength, sha256.New)
	return &Cipher{key: key}, nil
}

// Encrypt returns a base64-encoded ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plaintext), nil
}
