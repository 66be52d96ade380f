package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guided-traffic/hdi-sample-data/internal/batch"
	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/config"
	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/metadata"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/internal/records"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/dataencryption"
)

// mutationFlags maps each record toggle to the mutation it requests
var mutationFlags = []struct {
	name     string
	usage    string
	mutation records.Mutation
}{
	{"record-with-no-id", "include one record without an _id", records.NoID},
	{"record-with-mongo-id", "include one record with a mongo $oid _id", records.MongoID},
	{"record-with-mongo-date-id", "include one record whose _id embeds a $date", records.MongoDateID},
	{"record-with-string-id", "include one record with a plain string _id", records.StringID},
	{"record-without-timestamp", "include one record without _lastModifiedDateTime", records.NoTimestamp},
	{"record-without-timestamps", "include one record without _lastModifiedDateTime and createdDateTime", records.NoTimestamps},
	{"removed-record", "include one record wrapped as removed", records.Removed},
	{"archived-record", "include one record wrapped as archived", records.Archived},
	{"corrupted-record", "include one truncated, unparseable line", records.Truncated},
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write encrypted sample data and metadata file pairs",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}

	flags := cmd.Flags()
	addKeySourceFlags(flags)
	flags.BoolP("compress", "c", false, "gzip the payload before encryption")
	flags.String("compression", "", "compression codec: none, gzip, bzip2 or zstd (overrides --compress)")
	flags.BoolP("encrypt", "e", true, "encrypt the payload")
	flags.Int("file-count", 10, "number of file pairs to write")
	flags.Int("batch-size", 100, "number of records per file")
	flags.String("database", "adb", "database name used in file names")
	flags.String("collection", "collection", "collection name used in file names")
	flags.String("output-dir", ".", "directory for the local sink")
	flags.String("sink", "local", "output sink: local, s3 or blob")
	flags.Bool("coalesced-collection", false, "alternate files between the collection and its -archived twin")
	flags.String("template", "", "record template or manifest JSON file")
	flags.String("metadata-schema", "importer", "metadata field names: importer or legacy")
	flags.String("data-encoding", "raw", "data file encoding: raw or base64")
	flags.String("metrics-file", "", "write Prometheus metrics to this file when done")
	for _, m := range mutationFlags {
		flags.Bool(m.name, false, m.usage)
	}

	mustBind("generate.compress", flags.Lookup("compress"))
	mustBind("generate.compression", flags.Lookup("compression"))
	mustBind("generate.encrypt", flags.Lookup("encrypt"))
	mustBind("generate.file_count", flags.Lookup("file-count"))
	mustBind("generate.batch_size", flags.Lookup("batch-size"))
	mustBind("generate.database", flags.Lookup("database"))
	mustBind("generate.collection", flags.Lookup("collection"))
	mustBind("output.dir", flags.Lookup("output-dir"))
	mustBind("output.sink", flags.Lookup("sink"))
	mustBind("generate.coalesced_collection", flags.Lookup("coalesced-collection"))
	mustBind("generate.template", flags.Lookup("template"))
	mustBind("generate.metadata_schema", flags.Lookup("metadata-schema"))
	mustBind("generate.data_encoding", flags.Lookup("data-encoding"))
	mustBind("monitoring.metrics_file", flags.Lookup("metrics-file"))

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	bindKeySourceFlags(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := generateOptions(cmd, cfg)
	if err != nil {
		return err
	}

	manifest := records.DefaultManifest()
	if cfg.Generate.Template != "" {
		if manifest, err = records.LoadManifest(cfg.Generate.Template); err != nil {
			return err
		}
	}
	builder, err := records.NewBuilder(manifest)
	if err != nil {
		return err
	}

	provider, _, closeKeys, err := datakey.NewProviderFromConfig(ctx, &cfg.KeySource)
	if err != nil {
		return err
	}
	defer closeKeys()

	sink, err := output.New(ctx, cfg.Output.OutputSinkConfig())
	if err != nil {
		return err
	}
	defer sink.Close()

	generator, err := batch.NewGenerator(opts, provider, builder, dataencryption.NewAESCTRDataEncoder(), sink, batch.NewSequencer())
	if err != nil {
		return err
	}

	results, err := generator.Run(ctx)
	writeMetricsFile(cfg)
	if err != nil {
		return err
	}

	total := 0
	for _, r := range results {
		total += r.Records
	}
	logrus.WithFields(logrus.Fields{
		"files":   len(results),
		"records": total,
		"sink":    cfg.Output.Sink,
	}).Info("Done")

	return nil
}

// generateOptions merges the configured mutations with the record toggles set on the command line
func generateOptions(cmd *cobra.Command, cfg *config.Config) (batch.Options, error) {
	mutations, err := cfg.Generate.ParsedMutations()
	if err != nil {
		return batch.Options{}, err
	}
	for _, m := range mutationFlags {
		enabled, err := cmd.Flags().GetBool(m.name)
		if err != nil {
			return batch.Options{}, err
		}
		if enabled {
			mutations = append(mutations, m.mutation)
		}
	}

	codec, err := compression.Lookup(cfg.Generate.CodecName())
	if err != nil {
		return batch.Options{}, err
	}
	schema, err := metadata.ParseSchema(cfg.Generate.MetadataSchema)
	if err != nil {
		return batch.Options{}, err
	}
	encoding, err := output.ParseDataEncoding(cfg.Generate.DataEncoding)
	if err != nil {
		return batch.Options{}, err
	}

	return batch.Options{
		Database:       cfg.Generate.Database,
		Collection:     cfg.Generate.Collection,
		FileCount:      cfg.Generate.FileCount,
		BatchSize:      cfg.Generate.BatchSize,
		Encrypt:        cfg.Generate.Encrypt,
		Mutations:      mutations,
		Coalesced:      cfg.Generate.Coalesced,
		Codec:          codec,
		MetadataSchema: schema,
		DataEncoding:   encoding,
		SinkType:       cfg.Output.Sink,
		Seed:           cfg.Generate.Seed,
	}, nil
}
