package datakey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

// LocalProvider generates data keys in process and wraps them with a key encryption key
type LocalProvider struct {
	encryptor encryption.KeyEncryptor
	keySize   int
	random    io.Reader
}

// NewLocalProvider creates a provider issuing keySize byte data keys wrapped by encryptor
func NewLocalProvider(encryptor encryption.KeyEncryptor, keySize int) (*LocalProvider, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("key encryptor cannot be nil")
	}

	switch keySize {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("data key size must be 16, 24 or 32 bytes, got %d", keySize)
	}

	return &LocalProvider{
		encryptor: encryptor,
		keySize:   keySize,
		random:    rand.Reader,
	}, nil
}

// FetchDataKey generates and wraps a fresh data key
func (p *LocalProvider) FetchDataKey(ctx context.Context) (*DataKeyMaterial, error) {
	dek := make([]byte, p.keySize)
	if _, err := io.ReadFull(p.random, dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}

	encryptedDEK, keyID, err := p.encryptor.EncryptDEK(ctx, dek)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK: %w", err)
	}

	return &DataKeyMaterial{
		KeyID:        keyID,
		PlaintextKey: base64.StdEncoding.EncodeToString(dek),
		EncryptedKey: base64.StdEncoding.EncodeToString(encryptedDEK),
	}, nil
}

// DecryptDataKey unwraps an encrypted key issued by this provider
func (p *LocalProvider) DecryptDataKey(ctx context.Context, keyID string, encryptedKey string) (string, error) {
	encryptedDEK, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return "", fmt.Errorf("%w: encrypted key is not base64: %v", ErrInvalidKeyMaterial, err)
	}

	dek, err := p.encryptor.DecryptDEK(ctx, encryptedDEK, keyID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}

	return base64.StdEncoding.EncodeToString(dek), nil
}

// KeyID returns the id of the wrapping key
func (p *LocalProvider) KeyID() string {
	return p.encryptor.Fingerprint()
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return "local-" + p.encryptor.Name()
}
