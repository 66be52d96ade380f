// Package verify reads generated file pairs back the way the importer does and
// reports what each data file contains.
package verify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/metadata"
	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

const (
	dataSuffix     = ".gz.enc"
	metadataSuffix = ".encryption.json"
	maxLineSize    = 16 * 1024 * 1024
)

var (
	// ErrMissingMetadata is reported for a data file without a sidecar
	ErrMissingMetadata = errors.New("data file has no encryption metadata")

	// ErrUndecodable is reported when a data file decodes to no records or to more
	// unparseable lines than records, e.g. read with the wrong codec, key or encoding
	ErrUndecodable = errors.New("data file does not decode to records")
)

// Options controls how data files are decoded
type Options struct {
	Codec        compression.Codec
	Encrypted    bool
	DataEncoding output.DataEncoding

	// Keys, when set, unwraps the encrypted key instead of trusting the plaintext key in the sidecar
	Keys datakey.Decrypter
}

// FileReport is the outcome for one data file
type FileReport struct {
	DataFile     string
	MetadataFile string
	Database     string
	Collection   string
	Sequence     string
	Records      int
	InvalidLines int
	MissingIDs   int
	Removed      int
	Archived     int
	Err          error
}

// OK reports whether the file could be fully decoded
func (r FileReport) OK() bool {
	return r.Err == nil
}

// Report is the outcome of a verification run
type Report struct {
	Files          []FileReport
	OrphanMetadata []string
}

// Failed counts files that could not be decoded
func (r *Report) Failed() int {
	failed := 0
	for _, f := range r.Files {
		if !f.OK() {
			failed++
		}
	}
	return failed
}

// Verifier checks every pair in a source
type Verifier struct {
	source  output.Source
	decoder encryption.DataEncoder
	opts    Options
	logger  *logrus.Entry
}

// NewVerifier creates a verifier reading from source
func NewVerifier(source output.Source, decoder encryption.DataEncoder, opts Options) (*Verifier, error) {
	if source == nil || decoder == nil {
		return nil, errors.New("source and decoder are required")
	}
	if opts.Codec == nil {
		codec, err := compression.Lookup("none")
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.DataEncoding == "" {
		opts.DataEncoding = output.EncodingRaw
	}

	return &Verifier{
		source:  source,
		decoder: decoder,
		opts:    opts,
		logger:  logrus.WithField("component", "verify"),
	}, nil
}

// Run verifies every data file in the source. Per-file problems are recorded in
// the report; only listing failures and cancellation are returned as errors.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	names, err := v.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}

	report := &Report{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch {
		case strings.HasSuffix(name, dataSuffix):
			file := v.verifyFile(ctx, name, present)
			monitoring.RecordVerifiedFile(file.OK())
			report.Files = append(report.Files, file)
		case strings.HasSuffix(name, metadataSuffix):
			if !present[strings.TrimSuffix(name, metadataSuffix)+dataSuffix] {
				v.logger.WithField("file", name).Warn("Metadata file has no matching data file")
				report.OrphanMetadata = append(report.OrphanMetadata, name)
			}
		}
	}

	return report, nil
}

func (v *Verifier) verifyFile(ctx context.Context, dataName string, present map[string]bool) FileReport {
	base := strings.TrimSuffix(dataName, dataSuffix)
	file := FileReport{DataFile: dataName, MetadataFile: base + metadataSuffix}
	file.Database, file.Collection, file.Sequence = splitBatchName(base)

	logger := v.logger.WithField("file", dataName)

	if !present[file.MetadataFile] {
		file.Err = fmt.Errorf("%w: %s", ErrMissingMetadata, dataName)
		logger.WithError(file.Err).Error("Verification failed")
		return file
	}

	plain, err := v.decode(ctx, file)
	if err != nil {
		file.Err = err
		logger.WithError(err).Error("Verification failed")
		return file
	}

	countLines(plain, &file)
	if file.Records == 0 || file.InvalidLines > file.Records {
		file.Err = fmt.Errorf("%w: %s has %d records and %d invalid lines, check compression, encryption and data encoding",
			ErrUndecodable, dataName, file.Records, file.InvalidLines)
		logger.WithError(file.Err).Error("Verification failed")
		return file
	}

	logger.WithFields(logrus.Fields{
		"records":    file.Records,
		"invalid":    file.InvalidLines,
		"missingIds": file.MissingIDs,
		"removed":    file.Removed,
		"archived":   file.Archived,
	}).Info("Verified file")
	return file
}

func (v *Verifier) decode(ctx context.Context, file FileReport) ([]byte, error) {
	metaJSON, err := v.source.Read(ctx, file.MetadataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.MetadataFile, err)
	}
	meta, err := metadata.Parse(metaJSON)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	data, err := v.source.Read(ctx, file.DataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.DataFile, err)
	}
	data, err = v.opts.DataEncoding.Unwrap(data)
	if err != nil {
		return nil, err
	}

	if v.opts.Encrypted {
		key, err := v.dataKey(ctx, meta)
		if err != nil {
			return nil, err
		}
		iv, err := meta.IV()
		if err != nil {
			return nil, err
		}
		data, err = v.decoder.Decode(key, iv, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", file.DataFile, err)
		}
	}

	plain, err := v.opts.Codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", file.DataFile, err)
	}
	return plain, nil
}

func (v *Verifier) dataKey(ctx context.Context, meta metadata.EncryptionMetadata) ([]byte, error) {
	plaintext := meta.PlaintextDataKey
	if v.opts.Keys != nil {
		unwrapped, err := v.opts.Keys.DecryptDataKey(ctx, meta.KeyEncryptionKeyID, meta.EncryptedEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt data key: %w", err)
		}
		if plaintext != "" && plaintext != unwrapped {
			return nil, fmt.Errorf("%w: plaintext key does not match encrypted key", metadata.ErrMetadataInvalid)
		}
		plaintext = unwrapped
	}
	if plaintext == "" {
		return nil, fmt.Errorf("%w: no plaintext key and no key service to decrypt with", metadata.ErrMetadataInvalid)
	}

	material := datakey.DataKeyMaterial{PlaintextKey: plaintext}
	return material.RawKey()
}

func countLines(plain []byte, file *FileReport) {
	scanner := bufio.NewScanner(bytes.NewReader(plain))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var doc map[string]interface{}
		if err := json.Unmarshal(line, &doc); err != nil {
			file.InvalidLines++
			continue
		}
		file.Records++

		if inner, ok := doc["_removed"].(map[string]interface{}); ok {
			file.Removed++
			doc = inner
		} else if inner, ok := doc["_archived"].(map[string]interface{}); ok {
			file.Archived++
			doc = inner
		}
		if _, ok := doc["_id"]; !ok {
			file.MissingIDs++
		}
	}
	if scanner.Err() != nil {
		file.InvalidLines++
	}
}

// splitBatchName splits "<db>.<collection>.<seq>.json" where the collection may itself contain dots
func splitBatchName(base string) (database, collection, sequence string) {
	base = strings.TrimSuffix(base, ".json")
	first := strings.Index(base, ".")
	last := strings.LastIndex(base, ".")
	if first < 0 || first == last {
		return "", "", ""
	}
	return base[:first], base[first+1 : last], base[last+1:]
}
