package keyencryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

// AESKeyEncryptor wraps Data Encryption Keys with an AES-256 Key Encryption Key in CTR mode.
// The wrapped form is IV || ciphertext.
type AESKeyEncryptor struct {
	block       cipher.Block
	fingerprint string
	random      io.Reader
}

var _ encryption.KeyEncryptor = (*AESKeyEncryptor)(nil)

// NewAESKeyEncryptor creates a key encryptor from a raw 32 byte KEK
func NewAESKeyEncryptor(kek []byte) (*AESKeyEncryptor, error) {
	if len(kek) != 32 {
		return nil, fmt.Errorf("AES-256 key must be exactly 32 bytes, got %d", len(kek))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	hash := sha256.Sum256(kek)

	return &AESKeyEncryptor{
		block:       block,
		fingerprint: hex.EncodeToString(hash[:]),
		random:      rand.Reader,
	}, nil
}

// NewAESKeyEncryptorFromBase64 decodes a base64 KEK as printed by keygen
func NewAESKeyEncryptorFromBase64(encoded string) (*AESKeyEncryptor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	kek, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}

	return NewAESKeyEncryptor(kek)
}

// EncryptDEK encrypts a data key using AES-CTR with the KEK
func (p *AESKeyEncryptor) EncryptDEK(_ context.Context, dek []byte) ([]byte, string, error) {
	if len(dek) == 0 {
		return nil, "", fmt.Errorf("DEK cannot be empty")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(p.random, iv); err != nil {
		return nil, "", fmt.Errorf("failed to generate IV for DEK: %w", err)
	}

	result := make([]byte, aes.BlockSize+len(dek))
	copy(result, iv)
	cipher.NewCTR(p.block, iv).XORKeyStream(result[aes.BlockSize:], dek)

	return result, p.fingerprint, nil
}

// DecryptDEK decrypts a data key wrapped by EncryptDEK
func (p *AESKeyEncryptor) DecryptDEK(_ context.Context, encryptedDEK []byte, keyID string) ([]byte, error) {
	if keyID != p.fingerprint {
		return nil, fmt.Errorf("key ID mismatch: expected %s, got %s", p.fingerprint, keyID)
	}
	if len(encryptedDEK) <= aes.BlockSize {
		return nil, fmt.Errorf("encrypted DEK too short")
	}

	iv := encryptedDEK[:aes.BlockSize]
	data := encryptedDEK[aes.BlockSize:]

	dek := make([]byte, len(data))
	cipher.NewCTR(p.block, iv).XORKeyStream(dek, data)

	return dek, nil
}

// Name returns the provider name
func (p *AESKeyEncryptor) Name() string {
	return "aes"
}

// Fingerprint returns the hex SHA-256 of the KEK
func (p *AESKeyEncryptor) Fingerprint() string {
	return p.fingerprint
}
