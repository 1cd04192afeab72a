// Package crypto seals datasource credentials kept in configuration files.
//
// A sealed value looks like "enc:<base64url>" and is bound to the option it
// was sealed for, so it cannot be copied to another datasource's options and
// still open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EncryptedPrefix marks a configuration value produced by Seal.
const EncryptedPrefix = "enc:"

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned for malformed values, a wrong key or a
	// value sealed for a different option.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// sealEncoding keeps sealed values free of characters YAML would need quoted.
var sealEncoding = base64.RawURLEncoding

// CredentialEncryptor seals option values with AES-256-GCM.
type CredentialEncryptor struct {
	gcm cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor from CREDENTIALS_KEY. A
// base64-encoded 32-byte key (openssl rand -base64 32) is used as is; any
// other input is treated as a passphrase.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CredentialEncryptor{gcm: gcm}, nil
}

func deriveKey(keyInput string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(keyInput))
	return hash[:]
}

// OptionLabel names the option a value is sealed for, such as
// "warehouse.password".
func OptionLabel(datasource, option string) string {
	return datasource + "." + option
}

// IsSealed reports whether value carries the EncryptedPrefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Seal encrypts plaintext for the option named by label.
func (e *CredentialEncryptor) Seal(plaintext, label string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext || tag
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(label))
	return EncryptedPrefix + sealEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal for the same label. Values without the prefix are
// returned unchanged.
func (e *CredentialEncryptor) Open(value, label string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	data, err := sealEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: not base64url", ErrDecryptionFailed)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: value too short", ErrDecryptionFailed)
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], []byte(label))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed for %s", ErrDecryptionFailed, label)
	}
	return string(plaintext), nil
}
