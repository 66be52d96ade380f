// Package datakey obtains the data encryption key used for each generated batch.
package datakey

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
)

var (
	// ErrKeyServiceUnavailable is returned when the key source cannot be reached or refuses the request
	ErrKeyServiceUnavailable = errors.New("data key service unavailable")

	// ErrInvalidKeyMaterial is returned when the key source answers with unusable key material
	ErrInvalidKeyMaterial = errors.New("invalid data key material")
)

// DataKeyMaterial is one data key as issued by the key service.
// Both keys are base64 encoded; the plaintext key decodes to the raw AES key.
type DataKeyMaterial struct {
	KeyID        string `json:"dataKeyEncryptionKeyId"`
	PlaintextKey string `json:"plaintextDataKey"`
	EncryptedKey string `json:"ciphertextDataKey"`
}

// Validate checks that all fields are present and the plaintext key is usable for AES
func (m *DataKeyMaterial) Validate() error {
	if m.KeyID == "" || m.PlaintextKey == "" || m.EncryptedKey == "" {
		return fmt.Errorf("%w: blank field in key service response", ErrInvalidKeyMaterial)
	}
	if _, err := m.RawKey(); err != nil {
		return err
	}
	return nil
}

// RawKey decodes the plaintext key to the bytes used as the AES key
func (m *DataKeyMaterial) RawKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(m.PlaintextKey)
	if err != nil {
		return nil, fmt.Errorf("%w: plaintext key is not base64: %v", ErrInvalidKeyMaterial, err)
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: plaintext key must be 16, 24 or 32 bytes, got %d", ErrInvalidKeyMaterial, len(key))
	}
}

// Provider issues a fresh data key on every call
type Provider interface {
	FetchDataKey(ctx context.Context) (*DataKeyMaterial, error)
	Name() string
}

// Decrypter is implemented by providers able to unwrap their own encrypted keys
type Decrypter interface {
	DecryptDataKey(ctx context.Context, keyID string, encryptedKey string) (string, error)
}

type instrumented struct {
	Provider
}

// WithMetrics records fetch counts and latency for p
func WithMetrics(p Provider) Provider {
	return &instrumented{Provider: p}
}

func (i *instrumented) FetchDataKey(ctx context.Context) (*DataKeyMaterial, error) {
	start := time.Now()
	material, err := i.Provider.FetchDataKey(ctx)
	monitoring.RecordKeyFetch(i.Provider.Name(), time.Since(start), err)
	return material, err
}
