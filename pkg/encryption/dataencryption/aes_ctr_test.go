package dataencryption

import (
	"bytes"
	"crypto/aes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(size int) []byte {
	key := make([]byte, size)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestAESCTRDataEncoder_RoundTrip(t *testing.T) {
	encoder := NewAESCTRDataEncoder()
	payload := []byte(`{"_id":{"declarationId":"abc"}}` + "\n" + `{"_id":{"declarationId":"def"}}` + "\n")

	for _, size := range []int{16, 24, 32} {
		key := testKey(size)

		iv, ciphertext, err := encoder.Encode(key, payload, true)
		require.NoError(t, err)
		assert.Len(t, iv, aes.BlockSize)
		assert.Len(t, ciphertext, len(payload))
		assert.NotEqual(t, payload, ciphertext)

		plaintext, err := encoder.Decode(key, iv, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, payload, plaintext)
	}
}

func TestAESCTRDataEncoder_PassThrough(t *testing.T) {
	encoder := NewAESCTRDataEncoder()
	payload := []byte("not encrypted at all")

	iv, out, err := encoder.Encode(testKey(16), payload, false)
	require.NoError(t, err)

	// the IV is still generated so metadata keeps the same shape
	assert.Len(t, iv, aes.BlockSize)
	assert.Equal(t, payload, out)
}

func TestAESCTRDataEncoder_CounterStartsAtIV(t *testing.T) {
	ivSource := bytes.Repeat([]byte{0xff}, aes.BlockSize)
	ivSource[0] = 0x7f
	encoder := NewAESCTRDataEncoderWithRandom(bytes.NewReader(ivSource))
	key := testKey(16)

	zeros := make([]byte, 2*aes.BlockSize)
	iv, keystream, err := encoder.Encode(key, zeros, true)
	require.NoError(t, err)
	assert.Equal(t, ivSource, iv)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	// the counter is the big-endian integer value of the IV, so the second
	// keystream block is the encryption of IV+1 (carrying across bytes)
	counter := new(big.Int).SetBytes(iv)
	for i := 0; i < 2; i++ {
		counterBlock := make([]byte, aes.BlockSize)
		counter.FillBytes(counterBlock)

		expected := make([]byte, aes.BlockSize)
		block.Encrypt(expected, counterBlock)
		assert.Equal(t, expected, keystream[i*aes.BlockSize:(i+1)*aes.BlockSize], "keystream block %d", i)

		counter.Add(counter, big.NewInt(1))
	}
}

func TestAESCTRDataEncoder_FreshIVPerCall(t *testing.T) {
	encoder := NewAESCTRDataEncoder()
	key := testKey(32)

	iv1, _, err := encoder.Encode(key, []byte("data"), true)
	require.NoError(t, err)
	iv2, _, err := encoder.Encode(key, []byte("data"), true)
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
}

func TestAESCTRDataEncoder_InvalidKey(t *testing.T) {
	encoder := NewAESCTRDataEncoder()

	_, _, err := encoder.Encode([]byte("short"), []byte("data"), true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key size")

	// the key is validated even when encryption is disabled
	_, _, err = encoder.Encode([]byte("short"), []byte("data"), false)
	assert.Error(t, err)
}

func TestAESCTRDataEncoder_DecodeInvalidIV(t *testing.T) {
	encoder := NewAESCTRDataEncoder()

	_, err := encoder.Decode(testKey(16), []byte("too-short"), []byte("data"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid IV size")
}

func TestAESCTRDataEncoder_Algorithm(t *testing.T) {
	assert.Equal(t, "AES/CTR/NoPadding", NewAESCTRDataEncoder().Algorithm())
}
