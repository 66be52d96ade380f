package datakey

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/hdi-sample-data/internal/config"
	"github.com/guided-traffic/hdi-sample-data/internal/crypto"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/keyencryption"
)

func TestNewKeyEncryptor_DerivedAESIsStable(t *testing.T) {
	ctx := context.Background()
	cfg := &config.KEKConfig{Type: "aes", MasterSecret: "a-master-secret-for-tests"}

	first, closeFirst, err := NewKeyEncryptor(ctx, cfg)
	require.NoError(t, err)
	defer closeFirst()
	second, closeSecond, err := NewKeyEncryptor(ctx, cfg)
	require.NoError(t, err)
	defer closeSecond()

	assert.Equal(t, "aes", first.Name())
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	salted, closeSalted, err := NewKeyEncryptor(ctx, &config.KEKConfig{Type: "aes", MasterSecret: cfg.MasterSecret, Salt: "other"})
	require.NoError(t, err)
	defer closeSalted()
	assert.NotEqual(t, first.Fingerprint(), salted.Fingerprint())
}

func TestNewKeyEncryptor_ExplicitKeyWins(t *testing.T) {
	kek, err := crypto.DeriveKEK([]byte("a-master-secret-for-tests"))
	require.NoError(t, err)

	encryptor, closeFn, err := NewKeyEncryptor(context.Background(), &config.KEKConfig{
		Type:         "aes",
		Key:          base64.StdEncoding.EncodeToString(kek),
		MasterSecret: "ignored-because-key-is-set",
	})
	require.NoError(t, err)
	defer closeFn()

	derived, closeDerived, err := NewKeyEncryptor(context.Background(), &config.KEKConfig{Type: "aes", MasterSecret: "a-master-secret-for-tests"})
	require.NoError(t, err)
	defer closeDerived()
	assert.Equal(t, derived.Fingerprint(), encryptor.Fingerprint())
}

func TestNewKeyEncryptor_OtherTypes(t *testing.T) {
	ctx := context.Background()

	tink, closeTink, err := NewKeyEncryptor(ctx, &config.KEKConfig{Type: "tink", Tink: keyencryption.TinkConfig{KEKUri: "test://kek"}})
	require.NoError(t, err)
	defer closeTink()
	assert.Equal(t, "tink", tink.Name())

	keeper, closeKeeper, err := NewKeyEncryptor(ctx, &config.KEKConfig{
		Type:      "keeper",
		KeeperURL: "base64key://" + base64.URLEncoding.EncodeToString(make([]byte, 32)),
	})
	require.NoError(t, err)
	assert.Equal(t, "keeper", keeper.Name())
	assert.NoError(t, closeKeeper())

	_, _, err = NewKeyEncryptor(ctx, &config.KEKConfig{Type: "rsa"})
	assert.Error(t, err)
}

func TestNewProviderFromConfig(t *testing.T) {
	ctx := context.Background()

	provider, decrypter, closeFn, err := NewProviderFromConfig(ctx, &config.KeySourceConfig{
		Type: "local",
		Local: config.LocalKeyConfig{
			DataKeySize: 32,
			KEK:         config.KEKConfig{Type: "aes", MasterSecret: "a-master-secret-for-tests"},
		},
	})
	require.NoError(t, err)
	defer closeFn()

	material, err := provider.FetchDataKey(ctx)
	require.NoError(t, err)
	key, err := material.RawKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	plaintext, err := decrypter.DecryptDataKey(ctx, material.KeyID, material.EncryptedKey)
	require.NoError(t, err)
	assert.Equal(t, material.PlaintextKey, plaintext)

	httpProvider, _, closeHTTP, err := NewProviderFromConfig(ctx, &config.KeySourceConfig{Type: "http", URL: "http://localhost:1/datakey", Timeout: 1})
	require.NoError(t, err)
	defer closeHTTP()
	assert.Equal(t, "http", httpProvider.Name())

	_, _, _, err = NewProviderFromConfig(ctx, &config.KeySourceConfig{Type: "ftp"})
	assert.Error(t, err)
}
