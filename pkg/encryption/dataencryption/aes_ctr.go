package dataencryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

// AESCTRDataEncoder implements encryption.DataEncoder using AES in counter mode.
// The key length selects AES-128, AES-192 or AES-256.
type AESCTRDataEncoder struct {
	random io.Reader
}

// NewAESCTRDataEncoder creates a new AES-CTR data encoder reading IVs from crypto/rand
func NewAESCTRDataEncoder() *AESCTRDataEncoder {
	return &AESCTRDataEncoder{random: rand.Reader}
}

// NewAESCTRDataEncoderWithRandom creates an encoder with a custom IV source
func NewAESCTRDataEncoderWithRandom(random io.Reader) *AESCTRDataEncoder {
	return &AESCTRDataEncoder{random: random}
}

var _ encryption.DataEncoder = (*AESCTRDataEncoder)(nil)

// Encode generates a fresh IV of one block and encrypts payload with the
// counter initialised to the big-endian value of that IV.
func (e *AESCTRDataEncoder) Encode(key []byte, payload []byte, encrypt bool) ([]byte, []byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	if !encrypt {
		return iv, payload, nil
	}

	ciphertext := make([]byte, len(payload))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, payload)

	return iv, ciphertext, nil
}

// Decode decrypts data produced by Encode with encryption enabled
func (e *AESCTRDataEncoder) Decode(key []byte, iv []byte, data []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid IV size: expected %d bytes, got %d", aes.BlockSize, len(iv))
	}

	plaintext := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, data)

	return plaintext, nil
}

// Algorithm returns the algorithm identifier
func (e *AESCTRDataEncoder) Algorithm() string {
	return "AES/CTR/NoPadding"
}

func newBlock(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key size: expected 16, 24 or 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return block, nil
}
