package datakey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/keyencryption"
)

func newLocalProvider(t *testing.T, keySize int) *LocalProvider {
	t.Helper()
	encryptor, err := keyencryption.NewAESKeyEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)
	provider, err := NewLocalProvider(encryptor, keySize)
	require.NoError(t, err)
	return provider
}

func TestLocalProvider_FetchAndDecrypt(t *testing.T) {
	provider := newLocalProvider(t, 16)
	ctx := context.Background()

	material, err := provider.FetchDataKey(ctx)
	require.NoError(t, err)
	require.NoError(t, material.Validate())
	assert.Equal(t, provider.KeyID(), material.KeyID)

	raw, err := material.RawKey()
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	plaintext, err := provider.DecryptDataKey(ctx, material.KeyID, material.EncryptedKey)
	require.NoError(t, err)
	assert.Equal(t, material.PlaintextKey, plaintext)

	_, err = provider.DecryptDataKey(ctx, "other", material.EncryptedKey)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestLocalProvider_FreshKeyPerFetch(t *testing.T) {
	provider := newLocalProvider(t, 32)

	first, err := provider.FetchDataKey(context.Background())
	require.NoError(t, err)
	second, err := provider.FetchDataKey(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.PlaintextKey, second.PlaintextKey)
	assert.Equal(t, "local-aes", provider.Name())
}

func TestNewLocalProvider_Invalid(t *testing.T) {
	_, err := NewLocalProvider(nil, 16)
	assert.Error(t, err)

	encryptor, err := keyencryption.NewAESKeyEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)
	_, err = NewLocalProvider(encryptor, 12)
	assert.Error(t, err)
}
