package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// newGCM builds the AES-256-GCM cipher from a deterministic machine-bound
// key (hostname + working directory hashed together). That keeps API keys in
// settings.json from being casually readable without forcing users to manage
// a passphrase; it is obfuscation against shoulder-surfing, not vault-grade
// protection.
func newGCM() (cipher.AEAD, error) {
	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()
	key := sha256.Sum256([]byte("docsmith:" + hostname + ":" + cwd))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher error: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string. Returns empty string for empty input.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aesGCM, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce error: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decodes a base64 string and decrypts it using AES-256-GCM.
// Returns empty string for empty input.
func Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode error: %w", err)
	}

	aesGCM, err := newGCM()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt error: %w", err)
	}

	return string(plaintext), nil
}
