package datakey

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/hdi-sample-data/internal/config"
	"github.com/guided-traffic/hdi-sample-data/internal/crypto"
	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/keyencryption"
)

func noopClose() error { return nil }

// NewKeyEncryptor creates the key encryption key described by cfg. The returned
// function releases any remote connection held by the encryptor.
func NewKeyEncryptor(ctx context.Context, cfg *config.KEKConfig) (encryption.KeyEncryptor, func() error, error) {
	logger := logrus.WithField("component", "kek-factory")

	var (
		encryptor encryption.KeyEncryptor
		closeFn   = noopClose
	)

	switch cfg.Type {
	case "aes":
		if cfg.Key != "" {
			enc, err := keyencryption.NewAESKeyEncryptorFromBase64(cfg.Key)
			if err != nil {
				return nil, nil, err
			}
			encryptor = enc
			break
		}

		if cfg.MasterSecret == config.DefaultMasterSecret {
			logger.Warn("Deriving the KEK from the built-in development master secret")
		}
		hkdfConfig := crypto.NewHKDFConfig()
		if cfg.Salt != "" {
			hkdfConfig.Salt = []byte(cfg.Salt)
		}
		kek, err := hkdfConfig.DeriveKEK([]byte(cfg.MasterSecret))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to derive KEK: %w", err)
		}
		enc, err := keyencryption.NewAESKeyEncryptor(kek)
		if err != nil {
			return nil, nil, err
		}
		encryptor = enc

	case "tink":
		enc, err := keyencryption.NewTinkKeyEncryptorFromConfig(&cfg.Tink)
		if err != nil {
			return nil, nil, err
		}
		encryptor = enc

	case "keeper":
		enc, err := keyencryption.OpenKeeperKeyEncryptor(ctx, cfg.KeeperURL)
		if err != nil {
			return nil, nil, err
		}
		encryptor = enc
		closeFn = enc.Close

	default:
		return nil, nil, fmt.Errorf("unsupported KEK type: %s", cfg.Type)
	}

	monitoring.SetKeyEncryptorInfo(encryptor.Name(), encryptor.Fingerprint())
	logger.WithFields(logrus.Fields{
		"type":        encryptor.Name(),
		"fingerprint": encryptor.Fingerprint(),
	}).Info("Key encryption key ready")

	return encryptor, closeFn, nil
}

// NewLocalProviderFromConfig creates a LocalProvider with the configured KEK
func NewLocalProviderFromConfig(ctx context.Context, cfg *config.LocalKeyConfig) (*LocalProvider, func() error, error) {
	encryptor, closeFn, err := NewKeyEncryptor(ctx, &cfg.KEK)
	if err != nil {
		return nil, nil, err
	}

	provider, err := NewLocalProvider(encryptor, cfg.DataKeySize)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return provider, closeFn, nil
}

// NewProviderFromConfig creates the configured key source. The provider records
// fetch metrics; the decrypter is the same source, able to unwrap its own keys.
func NewProviderFromConfig(ctx context.Context, cfg *config.KeySourceConfig) (Provider, Decrypter, func() error, error) {
	switch cfg.Type {
	case "http":
		p := NewHTTPProvider(cfg.URL, time.Duration(cfg.Timeout)*time.Second)
		return WithMetrics(p), p, noopClose, nil

	case "kms":
		client, err := NewKMSClient(ctx, &KMSConfig{
			KeyID:       cfg.KMS.KeyID,
			Region:      cfg.KMS.Region,
			Endpoint:    cfg.KMS.Endpoint,
			AccessKeyID: cfg.KMS.AccessKeyID,
			SecretKey:   cfg.KMS.SecretKey,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		p := NewKMSProvider(client, cfg.KMS.KeyID)
		return WithMetrics(p), p, noopClose, nil

	case "local":
		p, closeFn, err := NewLocalProviderFromConfig(ctx, &cfg.Local)
		if err != nil {
			return nil, nil, nil, err
		}
		return WithMetrics(p), p, closeFn, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported key source type: %s", cfg.Type)
	}
}
