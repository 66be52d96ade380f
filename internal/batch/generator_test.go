package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/metadata"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/internal/records"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/dataencryption"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/keyencryption"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingProvider struct{}

func (failingProvider) FetchDataKey(context.Context) (*datakey.DataKeyMaterial, error) {
	return nil, datakey.ErrKeyServiceUnavailable
}

func (failingProvider) Name() string { return "failing" }

type fixture struct {
	dir      string
	provider *datakey.LocalProvider
	builder  *records.Builder
	sink     *output.LocalSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	encryptor, err := keyencryption.NewAESKeyEncryptor(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	provider, err := datakey.NewLocalProvider(encryptor, 16)
	require.NoError(t, err)
	builder, err := records.NewBuilder(records.DefaultManifest())
	require.NoError(t, err)

	dir := t.TempDir()
	sink, err := output.NewLocalSink(dir)
	require.NoError(t, err)

	return &fixture{dir: dir, provider: provider, builder: builder, sink: sink}
}

func (f *fixture) generator(t *testing.T, opts Options) *Generator {
	t.Helper()
	if opts.Database == "" {
		opts.Database = "adb"
	}
	if opts.Collection == "" {
		opts.Collection = "collection"
	}
	gen, err := NewGenerator(opts, f.provider, f.builder, dataencryption.NewAESCTRDataEncoder(), f.sink, nil)
	require.NoError(t, err)
	return gen
}

// readLines decrypts and decompresses one written pair
func (f *fixture) readLines(t *testing.T, result Result, codec compression.Codec, encrypted bool, encoding output.DataEncoding) []string {
	t.Helper()
	metadataName, dataName := output.Names(result.Batch, result.Sequence)

	metaJSON, err := os.ReadFile(filepath.Join(f.dir, metadataName))
	require.NoError(t, err)
	meta, err := metadata.Parse(metaJSON)
	require.NoError(t, err)
	require.NoError(t, meta.Validate())

	data, err := os.ReadFile(filepath.Join(f.dir, dataName))
	require.NoError(t, err)
	data, err = encoding.Unwrap(data)
	require.NoError(t, err)

	if encrypted {
		material := datakey.DataKeyMaterial{
			KeyID:        meta.KeyEncryptionKeyID,
			PlaintextKey: meta.PlaintextDataKey,
			EncryptedKey: meta.EncryptedEncryptionKey,
		}
		key, err := material.RawKey()
		require.NoError(t, err)
		iv, err := meta.IV()
		require.NoError(t, err)
		data, err = dataencryption.NewAESCTRDataEncoder().Decode(key, iv, data)
		require.NoError(t, err)
	}

	plain, err := codec.Decompress(data)
	require.NoError(t, err)

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(plain))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestSequencer(t *testing.T) {
	s := NewSequencer()

	assert.Equal(t, 0, s.Next("adb.collection"))
	assert.Equal(t, 1, s.Next("adb.collection"))
	assert.Equal(t, 0, s.Next("adb.collection-archived"))
	assert.Equal(t, 2, s.Next("adb.collection"))
	assert.Equal(t, 1, s.Next("adb.collection-archived"))
}

func TestNextBatchName(t *testing.T) {
	f := newFixture(t)

	plain := f.generator(t, Options{FileCount: 1, BatchSize: 1})
	assert.Equal(t, "adb.collection", plain.NextBatchName(0))
	assert.Equal(t, "adb.collection", plain.NextBatchName(1))

	coalesced := f.generator(t, Options{FileCount: 1, BatchSize: 1, Coalesced: true})
	assert.Equal(t, "adb.collection", coalesced.NextBatchName(0))
	assert.Equal(t, "adb.collection-archived", coalesced.NextBatchName(1))
	assert.Equal(t, "adb.collection", coalesced.NextBatchName(2))
}

func TestRunCompressedAndEncrypted(t *testing.T) {
	f := newFixture(t)
	codec, err := compression.Lookup("gzip")
	require.NoError(t, err)

	results, err := f.generator(t, Options{FileCount: 3, BatchSize: 10, Encrypt: true, Codec: codec}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, result := range results {
		assert.Equal(t, "adb.collection", result.Batch)
		assert.Equal(t, i, result.Sequence)
		assert.Equal(t, f.provider.KeyID(), result.KeyID)
		assert.Equal(t, 10, result.Records)

		lines := f.readLines(t, result, codec, true, output.EncodingRaw)
		require.Len(t, lines, 10)
		for _, line := range lines {
			var doc map[string]interface{}
			assert.NoError(t, json.Unmarshal([]byte(line), &doc))
		}
	}

	_, err = os.Stat(filepath.Join(f.dir, "adb.collection.0002.json.gz.enc"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.dir, "adb.collection.0002.json.encryption.json"))
	assert.NoError(t, err)
}

func TestRunMetadataMatchesKeyMaterial(t *testing.T) {
	f := newFixture(t)
	results, err := f.generator(t, Options{FileCount: 1, BatchSize: 2, Encrypt: true}).Run(context.Background())
	require.NoError(t, err)

	metadataName, _ := output.Names(results[0].Batch, results[0].Sequence)
	raw, err := os.ReadFile(filepath.Join(f.dir, metadataName))
	require.NoError(t, err)
	meta, err := metadata.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, f.provider.KeyID(), meta.KeyEncryptionKeyID)
	plaintext, err := f.provider.DecryptDataKey(context.Background(), meta.KeyEncryptionKeyID, meta.EncryptedEncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, meta.PlaintextDataKey)
}

func TestRunWithoutEncryptionWritesCompressedBytes(t *testing.T) {
	f := newFixture(t)
	codec, err := compression.Lookup("bzip2")
	require.NoError(t, err)

	results, err := f.generator(t, Options{FileCount: 1, BatchSize: 5, Codec: codec}).Run(context.Background())
	require.NoError(t, err)

	lines := f.readLines(t, results[0], codec, false, output.EncodingRaw)
	assert.Len(t, lines, 5)
}

func TestRunBase64DataEncoding(t *testing.T) {
	f := newFixture(t)
	codec, err := compression.Lookup("zstd")
	require.NoError(t, err)

	results, err := f.generator(t, Options{
		FileCount:    1,
		BatchSize:    4,
		Encrypt:      true,
		Codec:        codec,
		DataEncoding: output.EncodingBase64,
	}).Run(context.Background())
	require.NoError(t, err)

	lines := f.readLines(t, results[0], codec, true, output.EncodingBase64)
	assert.Len(t, lines, 4)
}

func TestRunRecordWithNoID(t *testing.T) {
	f := newFixture(t)
	codec, err := compression.Lookup("none")
	require.NoError(t, err)

	results, err := f.generator(t, Options{
		FileCount: 2,
		BatchSize: 10,
		Encrypt:   true,
		Codec:     codec,
		Mutations: []records.Mutation{records.NoID},
	}).Run(context.Background())
	require.NoError(t, err)

	for _, result := range results {
		assert.Equal(t, []records.Mutation{records.NoID}, result.Mutations)

		missing := 0
		for _, line := range f.readLines(t, result, codec, true, output.EncodingRaw) {
			var doc map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(line), &doc))
			if _, ok := doc["_id"]; !ok {
				missing++
			}
		}
		assert.Equal(t, 1, missing)
	}
}

func TestRunEveryMutationOnce(t *testing.T) {
	f := newFixture(t)
	codec, err := compression.Lookup("gzip")
	require.NoError(t, err)

	results, err := f.generator(t, Options{
		FileCount: 1,
		BatchSize: 12,
		Encrypt:   true,
		Codec:     codec,
		Mutations: records.AllMutations(),
		Seed:      42,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, records.AllMutations(), results[0].Mutations)

	invalid, removed, archived := 0, 0, 0
	for _, line := range f.readLines(t, results[0], codec, true, output.EncodingRaw) {
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			invalid++
			continue
		}
		if _, ok := doc["_removed"]; ok {
			removed++
		}
		if _, ok := doc["_archived"]; ok {
			archived++
		}
	}
	assert.Equal(t, 1, invalid)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, archived)
}

func TestRunCoalescedSequences(t *testing.T) {
	f := newFixture(t)
	results, err := f.generator(t, Options{FileCount: 4, BatchSize: 1, Coalesced: true}).Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		metadataName, _ := output.Names(r.Batch, r.Sequence)
		names = append(names, metadataName)
	}
	assert.Equal(t, []string{
		"adb.collection.0000.json.encryption.json",
		"adb.collection-archived.0000.json.encryption.json",
		"adb.collection.0001.json.encryption.json",
		"adb.collection-archived.0001.json.encryption.json",
	}, names)
}

func TestRunStopsOnKeyServiceError(t *testing.T) {
	f := newFixture(t)
	gen, err := NewGenerator(Options{Database: "adb", Collection: "collection", FileCount: 2, BatchSize: 1},
		failingProvider{}, f.builder, dataencryption.NewAESCTRDataEncoder(), f.sink, nil)
	require.NoError(t, err)

	results, err := gen.Run(context.Background())
	assert.ErrorIs(t, err, datakey.ErrKeyServiceUnavailable)
	assert.Empty(t, results)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.generator(t, Options{FileCount: 1, BatchSize: 1}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeneratorValidation(t *testing.T) {
	f := newFixture(t)
	encoder := dataencryption.NewAESCTRDataEncoder()

	tests := []struct {
		name string
		opts Options
	}{
		{"missing database", Options{Collection: "c", FileCount: 1, BatchSize: 1}},
		{"zero files", Options{Database: "d", Collection: "c", BatchSize: 1}},
		{"zero batch", Options{Database: "d", Collection: "c", FileCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.opts, f.provider, f.builder, encoder, f.sink, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewGenerator(Options{
		Database:   "d",
		Collection: "c",
		FileCount:  1,
		BatchSize:  2,
		Mutations:  []records.Mutation{records.NoID, records.StringID, records.Removed},
	}, f.provider, f.builder, encoder, f.sink, nil)
	assert.ErrorIs(t, err, records.ErrTooManyMutations)
}
