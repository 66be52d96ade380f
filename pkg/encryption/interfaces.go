package encryption

import (
	"context"
)

// KeyEncryptor handles Key Encryption Key (KEK) operations for wrapping/unwrapping Data Encryption Keys (DEK)
type KeyEncryptor interface {
	// EncryptDEK encrypts a Data Encryption Key with the Key Encryption Key
	// Returns the encrypted DEK and an identifier for the KEK used
	EncryptDEK(ctx context.Context, dek []byte) (encryptedDEK []byte, keyID string, err error)

	// DecryptDEK decrypts a Data Encryption Key using the Key Encryption Key
	// keyID identifies which KEK to use for decryption
	DecryptDEK(ctx context.Context, encryptedDEK []byte, keyID string) (dek []byte, err error)

	// Name returns a short unique name for this KeyEncryptor type (e.g. "aes", "tink")
	Name() string

	// Fingerprint returns a unique identifier for this KeyEncryptor
	// It is published as the key encryption key id of every wrapped DEK
	Fingerprint() string
}

// DataEncoder turns a batch payload into the bytes written to a data file.
// The initialisation vector is returned separately so it can be stored in the
// metadata sidecar rather than prefixed to the data.
type DataEncoder interface {
	// Encode encrypts payload with key. When encrypt is false the payload is
	// returned unchanged, but an IV is still generated.
	Encode(key []byte, payload []byte, encrypt bool) (iv []byte, out []byte, err error)

	// Decode reverses Encode for an encrypted payload
	Decode(key []byte, iv []byte, data []byte) ([]byte, error)

	// Algorithm returns the encryption algorithm identifier
	Algorithm() string
}
