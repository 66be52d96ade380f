package output

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// DataEncoding selects how data file bytes are stored
type DataEncoding string

const (
	// EncodingRaw stores the bytes as produced
	EncodingRaw DataEncoding = "raw"
	// EncodingBase64 stores the standard base64 text of the bytes
	EncodingBase64 DataEncoding = "base64"
)

// ParseDataEncoding converts an encoding name, defaulting to raw
func ParseDataEncoding(name string) (DataEncoding, error) {
	switch DataEncoding(strings.ToLower(strings.TrimSpace(name))) {
	case EncodingRaw, "":
		return EncodingRaw, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("unknown data encoding %q (supported: raw, base64)", name)
	}
}

// Wrap applies the encoding to data
func (e DataEncoding) Wrap(data []byte) []byte {
	if e != EncodingBase64 {
		return data
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out
}

// Unwrap reverses Wrap. Surrounding whitespace is ignored for base64.
func (e DataEncoding) Unwrap(data []byte) ([]byte, error) {
	if e != EncodingBase64 {
		return data, nil
	}
	trimmed := bytes.TrimSpace(data)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(out, trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 data: %w", err)
	}
	return out[:n], nil
}
