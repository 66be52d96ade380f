package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/config"
	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/internal/verify"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/dataencryption"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Decrypt and decompress generated files and report their records",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	}

	flags := cmd.Flags()
	flags.String("dir", "", "directory or blob URL to verify (default: the configured output)")
	flags.String("compression", "", "compression codec of the data files (default: as generated)")
	flags.Bool("encrypted", true, "data files are encrypted")
	flags.String("data-encoding", "raw", "data file encoding: raw or base64")
	flags.Bool("decrypt-keys", false, "unwrap data keys through the key source instead of trusting the plaintext key")
	addKeySourceFlags(flags)

	mustBind("verify.source", flags.Lookup("dir"))
	mustBind("verify.compression", flags.Lookup("compression"))
	mustBind("verify.encrypted", flags.Lookup("encrypted"))
	mustBind("verify.data_encoding", flags.Lookup("data-encoding"))
	mustBind("verify.decrypt_keys", flags.Lookup("decrypt-keys"))

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	bindKeySourceFlags(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := openVerifySource(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	codec, err := compression.Lookup(cfg.Verify.CodecName(cfg.Generate))
	if err != nil {
		return err
	}
	encoding, err := output.ParseDataEncoding(cfg.Verify.DataEncoding)
	if err != nil {
		return err
	}

	opts := verify.Options{
		Codec:        codec,
		Encrypted:    cfg.Verify.Encrypted,
		DataEncoding: encoding,
	}
	if cfg.Verify.DecryptKeys {
		_, decrypter, closeKeys, err := datakey.NewProviderFromConfig(ctx, &cfg.KeySource)
		if err != nil {
			return err
		}
		defer closeKeys()
		opts.Keys = decrypter
	}

	verifier, err := verify.NewVerifier(source, dataencryption.NewAESCTRDataEncoder(), opts)
	if err != nil {
		return err
	}

	report, err := verifier.Run(ctx)
	writeMetricsFile(cfg)
	if err != nil {
		return err
	}

	totals := verify.FileReport{}
	for _, f := range report.Files {
		totals.Records += f.Records
		totals.InvalidLines += f.InvalidLines
		totals.MissingIDs += f.MissingIDs
		totals.Removed += f.Removed
		totals.Archived += f.Archived
	}
	logrus.WithFields(logrus.Fields{
		"files":          len(report.Files),
		"failed":         report.Failed(),
		"orphanMetadata": len(report.OrphanMetadata),
		"records":        totals.Records,
		"invalidLines":   totals.InvalidLines,
		"missingIds":     totals.MissingIDs,
		"removed":        totals.Removed,
		"archived":       totals.Archived,
	}).Info("Verification finished")

	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d files failed verification", failed, len(report.Files))
	}
	return nil
}

// openVerifySource reads from verify.source when set, otherwise from wherever generate writes
func openVerifySource(ctx context.Context, cfg *config.Config) (output.Source, error) {
	if cfg.Verify.Source != "" {
		return output.OpenSource(ctx, cfg.Verify.Source)
	}

	switch cfg.Output.Sink {
	case "s3":
		s3Config := cfg.Output.OutputSinkConfig().S3
		s3Config.CreateBucket = false
		return output.NewS3Sink(ctx, &s3Config)
	case "blob":
		return output.OpenBlobSink(ctx, cfg.Output.URL, cfg.Output.Prefix)
	default:
		return output.OpenSource(ctx, cfg.Output.Dir)
	}
}
