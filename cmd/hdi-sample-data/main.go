package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/guided-traffic/hdi-sample-data/internal/config"
	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "hdi-sample-data",
		Short: "Generates encrypted sample data files for historic data importer tests",
		Long: `hdi-sample-data writes batches of templated database records as encrypted,
optionally compressed data files, each paired with an encryption metadata file.

Every batch gets a fresh data key from a key source:
- http:  a data key service (GET <url>)
- kms:   AWS KMS GenerateDataKey, e.g. against localstack
- local: keys generated in process and wrapped with an aes, tink or keeper KEK

Individual records can be mutated to exercise importer edge cases: missing or
alternative ids, missing timestamps, removed and archived wrappers and
truncated lines.

Configuration is read from .hdi-sample-data.yaml, HDI_* environment variables,
a .env file and the command line flags, in increasing order of precedence.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	mustBind("log_level", flags.Lookup("log-level"))
	mustBind("log_format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newGenerateCmd(), newVerifyCmd(), newServeDataKeysCmd())
}

func initConfig() {
	config.InitConfig(cfgFile)
}

// loadConfig loads the configuration and applies the logging settings
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Debug("hdi-sample-data build information")

	return cfg, nil
}

// writeMetricsFile exports the registry for one-shot runs when a metrics file is configured
func writeMetricsFile(cfg *config.Config) {
	if cfg.Monitoring.MetricsFile == "" {
		return
	}
	if err := monitoring.WriteToTextfile(cfg.Monitoring.MetricsFile); err != nil {
		logrus.WithError(err).WithField("file", cfg.Monitoring.MetricsFile).Warn("Failed to write metrics file")
		return
	}
	logrus.WithField("file", cfg.Monitoring.MetricsFile).Debug("Wrote metrics file")
}

// mustBind binds a flag to a configuration key so an explicitly set flag
// overrides the config file and environment
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", key, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// addKeySourceFlags defines the key source flags shared by generate and verify
func addKeySourceFlags(flags *pflag.FlagSet) {
	flags.StringP("data-key-service", "k", "", "data key service URL, used as is")
	flags.String("key-source", "", "data key source: http, kms or local")
}

// bindKeySourceFlags binds the running command's key source flags. Viper keeps
// one flag per key, so this happens at run time rather than in init.
func bindKeySourceFlags(cmd *cobra.Command) {
	mustBind("key_source.url", cmd.Flags().Lookup("data-key-service"))
	mustBind("key_source.type", cmd.Flags().Lookup("key-source"))
}
