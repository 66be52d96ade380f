// Package metadata reads and writes the encryption metadata sidecar that accompanies every data file.
package metadata

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMetadataInvalid is returned for sidecars that cannot be used to decrypt their data file
var ErrMetadataInvalid = errors.New("invalid encryption metadata")

// Schema selects the field names used in the sidecar
type Schema string

const (
	// SchemaImporter is the layout read by the historic data importer
	SchemaImporter Schema = "importer"
	// SchemaLegacy is the layout of early fixture files
	SchemaLegacy Schema = "legacy"
)

// ParseSchema converts a schema name
func ParseSchema(name string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(name))) {
	case SchemaImporter, "":
		return SchemaImporter, nil
	case SchemaLegacy:
		return SchemaLegacy, nil
	default:
		return "", fmt.Errorf("unknown metadata schema %q (supported: importer, legacy)", name)
	}
}

// EncryptionMetadata describes how to decrypt one data file
type EncryptionMetadata struct {
	KeyEncryptionKeyID     string
	EncryptedEncryptionKey string
	PlaintextDataKey       string
	InitialisationVector   string
}

type importerDocument struct {
	KeyEncryptionKeyID     string `json:"keyEncryptionKeyId"`
	EncryptedEncryptionKey string `json:"encryptedEncryptionKey"`
	PlaintextDataKey       string `json:"plaintextDatakey"`
	InitialisationVector   string `json:"initialisationVector"`
}

type legacyDocument struct {
	KeyEncryptionKeyID     string `json:"encryptionKeyId"`
	EncryptedEncryptionKey string `json:"encryptedEncryptionKey"`
	PlaintextDataKey       string `json:"plaintextDatakey"`
	InitialisationVector   string `json:"iv"`
}

// WithIV returns a copy of m carrying the base64 encoding of iv
func (m EncryptionMetadata) WithIV(iv []byte) EncryptionMetadata {
	m.InitialisationVector = base64.StdEncoding.EncodeToString(iv)
	return m
}

// Marshal renders m in schema, pretty printed with a four space indent
func Marshal(m EncryptionMetadata, schema Schema) ([]byte, error) {
	var doc interface{}
	switch schema {
	case SchemaImporter, "":
		doc = importerDocument(m)
	case SchemaLegacy:
		doc = legacyDocument(m)
	default:
		return nil, fmt.Errorf("unknown metadata schema %q", schema)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// Parse reads a sidecar in either schema. Fields from the importer schema win
// when a document carries both spellings.
func Parse(data []byte) (EncryptionMetadata, error) {
	var doc struct {
		importerDocument
		LegacyKeyID string `json:"encryptionKeyId"`
		LegacyIV    string `json:"iv"`
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return EncryptionMetadata{}, fmt.Errorf("%w: %v", ErrMetadataInvalid, err)
	}

	m := EncryptionMetadata(doc.importerDocument)
	if m.KeyEncryptionKeyID == "" {
		m.KeyEncryptionKeyID = doc.LegacyKeyID
	}
	if m.InitialisationVector == "" {
		m.InitialisationVector = doc.LegacyIV
	}
	return m, nil
}

// Validate checks the fields the importer requires before it will decrypt a file
func (m EncryptionMetadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.KeyEncryptionKeyID) == "" {
		missing = append(missing, "keyEncryptionKeyId")
	}
	if strings.TrimSpace(m.EncryptedEncryptionKey) == "" {
		missing = append(missing, "encryptedEncryptionKey")
	}
	if strings.TrimSpace(m.InitialisationVector) == "" {
		missing = append(missing, "initialisationVector")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMetadataInvalid, strings.Join(missing, ", "))
	}

	iv, err := base64.StdEncoding.DecodeString(m.InitialisationVector)
	if err != nil {
		return fmt.Errorf("%w: initialisation vector is not base64: %v", ErrMetadataInvalid, err)
	}
	if len(iv) != 16 {
		return fmt.Errorf("%w: initialisation vector must be 16 bytes, got %d", ErrMetadataInvalid, len(iv))
	}
	return nil
}

// IV returns the decoded initialisation vector
func (m EncryptionMetadata) IV() ([]byte, error) {
	iv, err := base64.StdEncoding.DecodeString(m.InitialisationVector)
	if err != nil {
		return nil, fmt.Errorf("%w: initialisation vector is not base64: %v", ErrMetadataInvalid, err)
	}
	return iv, nil
}
