package keyencryption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

// TinkConfig holds configuration specific to Tink key encryption
type TinkConfig struct {
	KEKUri      string `mapstructure:"kek_uri"`      // identifies the KEK, used for the fingerprint
	KeysetPath  string `mapstructure:"keyset_path"`  // optional cleartext JSON keyset; a fresh keyset is generated when empty
	KeyTemplate string `mapstructure:"key_template"` // AES128_GCM or AES256_GCM (default)
}

// Validate validates the Tink configuration
func (c *TinkConfig) Validate() error {
	if c.KEKUri == "" {
		return fmt.Errorf("kek_uri is required for Tink provider")
	}

	switch c.KeyTemplate {
	case "", "AES128_GCM", "AES256_GCM":
	default:
		return fmt.Errorf("unsupported key_template: %s", c.KeyTemplate)
	}

	return nil
}

// NewTinkKeyEncryptorFromConfig creates a Tink key encryptor from config
func NewTinkKeyEncryptorFromConfig(config *TinkConfig) (*TinkKeyEncryptor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	handle, err := loadKEKHandle(config)
	if err != nil {
		return nil, fmt.Errorf("failed to load KEK handle: %w", err)
	}

	return NewTinkKeyEncryptor(handle, config.KEKUri)
}

func loadKEKHandle(config *TinkConfig) (*keyset.Handle, error) {
	if config.KeysetPath != "" {
		f, err := os.Open(config.KeysetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open keyset: %w", err)
		}
		defer f.Close()

		return insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	}

	template := aead.AES256GCMKeyTemplate()
	if config.KeyTemplate == "AES128_GCM" {
		template = aead.AES128GCMKeyTemplate()
	}

	return keyset.NewHandle(template)
}

// TinkKeyEncryptor wraps Data Encryption Keys with a Tink AEAD keyset
type TinkKeyEncryptor struct {
	kekAEAD tink.AEAD
	kekURI  string
}

var _ encryption.KeyEncryptor = (*TinkKeyEncryptor)(nil)

// NewTinkKeyEncryptor creates a new Tink key encryptor
func NewTinkKeyEncryptor(kekHandle *keyset.Handle, kekURI string) (*TinkKeyEncryptor, error) {
	if kekHandle == nil {
		return nil, fmt.Errorf("KEK handle cannot be nil")
	}

	kekAEAD, err := aead.New(kekHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to create KEK AEAD: %w", err)
	}

	return &TinkKeyEncryptor{
		kekAEAD: kekAEAD,
		kekURI:  kekURI,
	}, nil
}

// EncryptDEK encrypts a Data Encryption Key with the Tink KEK.
// The fingerprint is bound as associated data.
func (p *TinkKeyEncryptor) EncryptDEK(_ context.Context, dek []byte) ([]byte, string, error) {
	keyID := p.Fingerprint()

	encryptedDEK, err := p.kekAEAD.Encrypt(dek, []byte(keyID))
	if err != nil {
		return nil, "", fmt.Errorf("failed to encrypt DEK with Tink KEK: %w", err)
	}

	return encryptedDEK, keyID, nil
}

// DecryptDEK decrypts a Data Encryption Key with the Tink KEK
func (p *TinkKeyEncryptor) DecryptDEK(_ context.Context, encryptedDEK []byte, keyID string) ([]byte, error) {
	if keyID != p.Fingerprint() {
		return nil, fmt.Errorf("key ID mismatch: expected %s, got %s", p.Fingerprint(), keyID)
	}

	dek, err := p.kekAEAD.Decrypt(encryptedDEK, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK with Tink KEK: %w", err)
	}

	return dek, nil
}

// Name returns the provider name
func (p *TinkKeyEncryptor) Name() string {
	return "tink"
}

// Fingerprint returns a SHA-256 fingerprint of the KEK URI
func (p *TinkKeyEncryptor) Fingerprint() string {
	hash := sha256.Sum256([]byte(p.kekURI))
	return hex.EncodeToString(hash[:])
}
