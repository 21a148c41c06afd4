package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
)

var encryptionKey []byte

// ConfigureEncryption derives the AES-256 key from the configured secret.
// An empty secret leaves encryption unconfigured; callers fall back to raw ids.
func ConfigureEncryption(secret string) {
	if secret == "" {
		return
	}
	sum := sha256.Sum256([]byte(secret))
	encryptionKey = sum[:]
}

func EncryptAESGCM(plaintext string) (string, error) {
	if encryptionKey == nil {
		return "", fmt.Errorf("encryption key not configured")
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func DecryptAESGCM(ciphertext string) (string, error) {
	if encryptionKey == nil {
		return "", fmt.Errorf("encryption key not configured")
	}

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptFolderID produces the opaque form of a numeric folder id for URLs.
// Applied only at the serialization boundary; internals always use the raw id.
func EncryptFolderID(id uint) string {
	out, err := EncryptAESGCM(strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return strconv.FormatUint(uint64(id), 10)
	}
	return out
}

// DecryptFolderID reverses EncryptFolderID. Raw numeric ids are accepted even
// when encryption is configured: the opaque form hides ids from casual
// enumeration, while every lookup remains owner-scoped, so a guessed raw id
// resolves nothing the caller does not own. The fallback also keeps ids
// minted before a secret was set working after one is added.
func DecryptFolderID(value string) (uint, error) {
	if id, err := strconv.ParseUint(value, 10, 64); err == nil {
		return uint(id), nil
	}
	plain, err := DecryptAESGCM(value)
	if err != nil {
		return 0, fmt.Errorf("invalid folder id: %w", err)
	}
	id, err := strconv.ParseUint(plain, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid folder id: %w", err)
	}
	return uint(id), nil
}
