package keyencryption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/awskms"       // awskms:// driver
	_ "gocloud.dev/secrets/localsecrets" // base64key:// driver

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

// KeeperKeyEncryptor wraps Data Encryption Keys with a gocloud secrets keeper,
// e.g. base64key://<key> or awskms://<key id>?region=eu-west-2
type KeeperKeyEncryptor struct {
	keeper      *secrets.Keeper
	fingerprint string
}

var _ encryption.KeyEncryptor = (*KeeperKeyEncryptor)(nil)

// OpenKeeperKeyEncryptor opens the keeper at keyURI
func OpenKeeperKeyEncryptor(ctx context.Context, keyURI string) (*KeeperKeyEncryptor, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}

	hash := sha256.Sum256([]byte(keyURI))
	return &KeeperKeyEncryptor{
		keeper:      keeper,
		fingerprint: hex.EncodeToString(hash[:]),
	}, nil
}

// EncryptDEK encrypts a data key with the keeper
func (p *KeeperKeyEncryptor) EncryptDEK(ctx context.Context, dek []byte) ([]byte, string, error) {
	encryptedDEK, err := p.keeper.Encrypt(ctx, dek)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encrypt DEK with keeper: %w", err)
	}
	return encryptedDEK, p.fingerprint, nil
}

// DecryptDEK decrypts a data key with the keeper
func (p *KeeperKeyEncryptor) DecryptDEK(ctx context.Context, encryptedDEK []byte, keyID string) ([]byte, error) {
	if keyID != p.fingerprint {
		return nil, fmt.Errorf("key ID mismatch: expected %s, got %s", p.fingerprint, keyID)
	}

	dek, err := p.keeper.Decrypt(ctx, encryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK with keeper: %w", err)
	}
	return dek, nil
}

// Name returns the provider name
func (p *KeeperKeyEncryptor) Name() string {
	return "keeper"
}

// Fingerprint returns the hex SHA-256 of the keeper URI
func (p *KeeperKeyEncryptor) Fingerprint() string {
	return p.fingerprint
}

// Close releases the keeper
func (p *KeeperKeyEncryptor) Close() error {
	return p.keeper.Close()
}
