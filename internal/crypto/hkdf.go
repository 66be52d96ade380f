package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF constants for KEK derivation
const (
	// HKDFKEKInfo is the context information for HKDF when deriving key encryption keys
	HKDFKEKInfo = "hdi-sample-data-key-encryption-key"

	// DefaultHKDFSalt is used when no salt is configured so that the same
	// master secret always yields the same KEK
	DefaultHKDFSalt = "hdi-sample-data-dks-v1"

	// DefaultKEKSize is the size of the derived KEK in bytes
	DefaultKEKSize = 32 // AES-256

	// MinMasterSecretSize is the minimum accepted master secret length in bytes
	MinMasterSecretSize = 16
)

// HKDFConfig holds configuration for HKDF key derivation
type HKDFConfig struct {
	// HashAlgorithm specifies the hash function to use ("sha256" or "sha512")
	HashAlgorithm string

	// KeySize specifies the size of the derived key in bytes (16, 24 or 32)
	KeySize int

	// Salt is mixed into the extraction step
	Salt []byte
}

// NewHKDFConfig creates a new HKDF configuration with defaults
func NewHKDFConfig() *HKDFConfig {
	return &HKDFConfig{
		HashAlgorithm: "sha256",
		KeySize:       DefaultKEKSize,
		Salt:          []byte(DefaultHKDFSalt),
	}
}

// Validate validates the HKDF configuration
func (c *HKDFConfig) Validate() error {
	switch c.HashAlgorithm {
	case "sha256", "sha512":
	case "":
		return fmt.Errorf("hash algorithm is required")
	default:
		return fmt.Errorf("unsupported hash algorithm '%s' (supported: sha256, sha512)", c.HashAlgorithm)
	}

	switch c.KeySize {
	case 16, 24, 32:
	default:
		return fmt.Errorf("key size must be 16, 24 or 32 bytes, got %d", c.KeySize)
	}

	if len(c.Salt) == 0 {
		return fmt.Errorf("salt cannot be empty")
	}

	return nil
}

func (c *HKDFConfig) getHashFunction() func() hash.Hash {
	if c.HashAlgorithm == "sha512" {
		return sha512.New
	}
	return sha256.New
}

// DeriveKEK derives a key encryption key from a master secret.
// The derivation is deterministic for a given secret and config.
func (c *HKDFConfig) DeriveKEK(masterSecret []byte) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid HKDF config: %w", err)
	}

	if len(masterSecret) < MinMasterSecretSize {
		return nil, fmt.Errorf("master secret must be at least %d bytes, got %d", MinMasterSecretSize, len(masterSecret))
	}

	reader := hkdf.New(c.getHashFunction(), masterSecret, c.Salt, []byte(HKDFKEKInfo))

	kek := make([]byte, c.KeySize)
	if _, err := io.ReadFull(reader, kek); err != nil {
		return nil, fmt.Errorf("failed to derive KEK: %w", err)
	}

	return kek, nil
}

// DeriveKEK is a convenience function deriving an AES-256 KEK with the default config
func DeriveKEK(masterSecret []byte) ([]byte, error) {
	return NewHKDFConfig().DeriveKEK(masterSecret)
}
