package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MasterKeyEnv is consulted when no master key file is configured.
const MasterKeyEnv = "MFA_MASTER_KEY"

const hkdfInfo = "phimfa/enrollment-secret/v1"

var (
	// ErrCiphertextTooShort is returned when the input cannot hold a nonce.
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
	// ErrDecrypt is returned when authentication of the ciphertext fails.
	ErrDecrypt = errors.New("cryptox: decryption failed")
)

// LoadMasterKey reads master key material from either:
//  1. the file at path (if path is non-empty)
//  2. the MFA_MASTER_KEY environment variable
//  3. a freshly generated random key (development only)
//
// The returned bool reports whether the key is ephemeral, i.e. anything it
// encrypts will be unreadable after a restart.
func LoadMasterKey(path string) ([]byte, bool, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read master key file: %w", err)
		}
		data = []byte(strings.TrimSpace(string(data)))
		if len(data) == 0 {
			return nil, false, fmt.Errorf("master key file %q is empty", path)
		}
		return data, false, nil
	}

	if envKey := os.Getenv(MasterKeyEnv); envKey != "" {
		return []byte(envKey), false, nil
	}

	keyMaterial := make([]byte, 32)
	if _, err := rand.Read(keyMaterial); err != nil {
		return nil, false, fmt.Errorf("failed to generate ephemeral master key: %w", err)
	}
	return keyMaterial, true, nil
}

// Cipher seals enrollment secrets with AES-256-GCM. It satisfies the
// encrypt/decrypt collaborator the MFA service depends on.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher derives a 32-byte AES key from keyMaterial with HKDF-SHA256.
func NewCipher(keyMaterial []byte) (*Cipher, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("cryptox: empty key material")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: gcm, rand: rand.Reader}, nil
}

// Encrypt returns [12-byte nonce][ciphertext][16-byte tag].
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag to the nonce
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Any tampering or a wrong key yields ErrDecrypt.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}
