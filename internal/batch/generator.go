// Package batch drives the generation of encrypted sample files.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/metadata"
	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/internal/records"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption"
)

const archivedSuffix = "-archived"

// Options controls what a Generator produces
type Options struct {
	Database   string
	Collection string
	FileCount  int
	BatchSize  int
	Encrypt    bool
	Mutations  []records.Mutation

	// Coalesced alternates files between the collection and its archived twin
	Coalesced bool

	Codec          compression.Codec
	MetadataSchema metadata.Schema
	DataEncoding   output.DataEncoding

	// SinkType labels bytes written metrics
	SinkType string

	// Seed makes mutation positions reproducible when non-zero
	Seed uint64
}

// Result describes one written file pair
type Result struct {
	Batch        string
	Sequence     int
	KeyID        string
	Records      int
	Mutations    []records.Mutation
	MetadataURI  string
	DataURI      string
	PayloadBytes int
	DataBytes    int
}

// Generator writes FileCount metadata and data file pairs to a sink
type Generator struct {
	opts      Options
	keys      datakey.Provider
	builder   *records.Builder
	encoder   encryption.DataEncoder
	sink      output.Sink
	sequencer *Sequencer
	rng       *rand.Rand
	logger    *logrus.Entry
}

// NewGenerator validates opts and creates a generator. A nil sequencer starts
// every batch at zero.
func NewGenerator(opts Options, keys datakey.Provider, builder *records.Builder, encoder encryption.DataEncoder, sink output.Sink, sequencer *Sequencer) (*Generator, error) {
	if opts.Database == "" || opts.Collection == "" {
		return nil, errors.New("database and collection must be set")
	}
	if opts.FileCount < 1 {
		return nil, fmt.Errorf("file count must be positive, got %d", opts.FileCount)
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if keys == nil || builder == nil || encoder == nil || sink == nil {
		return nil, errors.New("key provider, builder, encoder and sink are required")
	}
	if opts.Codec == nil {
		codec, err := compression.Lookup("none")
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.MetadataSchema == "" {
		opts.MetadataSchema = metadata.SchemaImporter
	}
	if opts.DataEncoding == "" {
		opts.DataEncoding = output.EncodingRaw
	}
	if opts.SinkType == "" {
		opts.SinkType = "local"
	}
	if sequencer == nil {
		sequencer = NewSequencer()
	}

	unique := make(map[records.Mutation]bool)
	for _, m := range opts.Mutations {
		unique[m] = true
	}
	if len(unique) > opts.BatchSize {
		return nil, fmt.Errorf("%w: %d mutations, batch size %d", records.ErrTooManyMutations, len(unique), opts.BatchSize)
	}

	seed1, seed2 := opts.Seed, opts.Seed^0x9e3779b97f4a7c15
	if opts.Seed == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}

	return &Generator{
		opts:      opts,
		keys:      keys,
		builder:   builder,
		encoder:   encoder,
		sink:      sink,
		sequencer: sequencer,
		rng:       rand.New(rand.NewPCG(seed1, seed2)),
		logger:    logrus.WithField("component", "generator"),
	}, nil
}

// NextBatchName returns the batch name of the i-th file
func (g *Generator) NextBatchName(i int) string {
	name := g.opts.Database + "." + g.opts.Collection
	if g.opts.Coalesced && i%2 == 1 {
		return name + archivedSuffix
	}
	return name
}

// Run writes every file pair in order and stops at the first error
func (g *Generator) Run(ctx context.Context) ([]Result, error) {
	g.logger.WithFields(logrus.Fields{
		"files":       g.opts.FileCount,
		"batchSize":   g.opts.BatchSize,
		"encrypt":     g.opts.Encrypt,
		"compression": g.opts.Codec.Name(),
		"keySource":   g.keys.Name(),
		"mutations":   len(g.opts.Mutations),
	}).Info("Generating sample data")

	results := make([]Result, 0, g.opts.FileCount)
	for i := 0; i < g.opts.FileCount; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		name := g.NextBatchName(i)
		result, err := g.writeBatch(ctx, name, g.sequencer.Next(name))
		monitoring.RecordBatch(name, result.Records, err)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	g.logger.WithField("files", len(results)).Info("Sample data generated")
	return results, nil
}

func (g *Generator) writeBatch(ctx context.Context, name string, seq int) (Result, error) {
	result := Result{Batch: name, Sequence: seq}

	material, err := g.keys.FetchDataKey(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch data key for %s.%04d: %w", name, seq, err)
	}
	key, err := material.RawKey()
	if err != nil {
		return result, err
	}
	result.KeyID = material.KeyID

	batch, err := g.builder.BuildBatch(g.opts.BatchSize, g.opts.Mutations, g.rng)
	if err != nil {
		return result, err
	}
	payload, err := records.EncodeBatch(batch)
	if err != nil {
		return result, err
	}
	result.PayloadBytes = len(payload)

	compressed, err := g.opts.Codec.Compress(payload)
	if err != nil {
		return result, fmt.Errorf("failed to compress %s.%04d: %w", name, seq, err)
	}

	iv, encoded, err := g.encoder.Encode(key, compressed, g.opts.Encrypt)
	if err != nil {
		return result, fmt.Errorf("failed to encrypt %s.%04d: %w", name, seq, err)
	}
	data := g.opts.DataEncoding.Wrap(encoded)

	meta := metadata.EncryptionMetadata{
		KeyEncryptionKeyID:     material.KeyID,
		EncryptedEncryptionKey: material.EncryptedKey,
		PlaintextDataKey:       material.PlaintextKey,
	}.WithIV(iv)
	metaJSON, err := metadata.Marshal(meta, g.opts.MetadataSchema)
	if err != nil {
		return result, err
	}

	metadataName, dataName := output.Names(name, seq)
	if err := g.sink.Write(ctx, metadataName, metaJSON); err != nil {
		return result, err
	}
	monitoring.RecordBytesWritten(g.opts.SinkType, "metadata", len(metaJSON))

	if err := g.sink.Write(ctx, dataName, data); err != nil {
		return result, err
	}
	monitoring.RecordBytesWritten(g.opts.SinkType, "data", len(data))

	for _, rec := range batch {
		if rec.Mutation != "" {
			result.Mutations = append(result.Mutations, rec.Mutation)
			monitoring.RecordMutation(string(rec.Mutation))
		}
	}
	result.Records = len(batch)
	result.MetadataURI = g.sink.URI(metadataName)
	result.DataURI = g.sink.URI(dataName)
	result.DataBytes = len(data)

	g.logger.WithFields(logrus.Fields{
		"batch":     name,
		"sequence":  seq,
		"keyId":     material.KeyID,
		"records":   result.Records,
		"mutations": len(result.Mutations),
		"data":      result.DataURI,
	}).Info("Wrote batch")

	return result, nil
}
