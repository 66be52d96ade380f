package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/guided-traffic/hdi-sample-data/internal/compression"
	"github.com/guided-traffic/hdi-sample-data/internal/metadata"
	"github.com/guided-traffic/hdi-sample-data/internal/output"
	"github.com/guided-traffic/hdi-sample-data/internal/records"
	"github.com/guided-traffic/hdi-sample-data/pkg/encryption/keyencryption"
)

// DefaultMasterSecret is the development master secret used when none is configured
const DefaultMasterSecret = "hdi-sample-data-development-master-secret"

// replacer maps nested keys such as generate.file_count to HDI_GENERATE_FILE_COUNT
var replacer = strings.NewReplacer(".", "_")

// GenerateConfig holds the settings of the generate command
type GenerateConfig struct {
	Database       string   `mapstructure:"database"`
	Collection     string   `mapstructure:"collection"`
	FileCount      int      `mapstructure:"file_count"`
	BatchSize      int      `mapstructure:"batch_size"`
	Compress       bool     `mapstructure:"compress"`    // gzip when compression is not set
	Compression    string   `mapstructure:"compression"` // none, gzip, bzip2 or zstd
	Encrypt        bool     `mapstructure:"encrypt"`
	Mutations      []string `mapstructure:"mutations"`
	Coalesced      bool     `mapstructure:"coalesced_collection"`
	Template       string   `mapstructure:"template"` // optional manifest or template JSON file
	MetadataSchema string   `mapstructure:"metadata_schema"`
	DataEncoding   string   `mapstructure:"data_encoding"`
	Seed           uint64   `mapstructure:"seed"`
}

// KMSConfig holds the settings of the KMS key source
type KMSConfig struct {
	KeyID       string `mapstructure:"key_id"`
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKeyID string `mapstructure:"access_key_id"`
	SecretKey   string `mapstructure:"secret_key"`
}

// KEKConfig selects the key encryption key used to wrap locally generated data keys
type KEKConfig struct {
	Type         string                   `mapstructure:"type"` // aes, tink or keeper
	Key          string                   `mapstructure:"key"`  // base64 AES-256 key; derived from master_secret when empty
	MasterSecret string                   `mapstructure:"master_secret"`
	Salt         string                   `mapstructure:"salt"`
	Tink         keyencryption.TinkConfig `mapstructure:"tink"`
	KeeperURL    string                   `mapstructure:"keeper_url"` // e.g. base64key:// or awskms://
}

// LocalKeyConfig holds the settings of the in-process key source
type LocalKeyConfig struct {
	DataKeySize int       `mapstructure:"data_key_size"`
	KEK         KEKConfig `mapstructure:"kek"`
}

// KeySourceConfig selects where data keys come from
type KeySourceConfig struct {
	Type    string         `mapstructure:"type"` // http, kms or local
	URL     string         `mapstructure:"url"`
	Timeout int            `mapstructure:"timeout"` // seconds
	KMS     KMSConfig      `mapstructure:"kms"`
	Local   LocalKeyConfig `mapstructure:"local"`
}

// S3OutputConfig holds the settings of the S3 sink
type S3OutputConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	CreateBucket   bool   `mapstructure:"create_bucket"`
}

// OutputConfig selects the sink
type OutputConfig struct {
	Sink   string         `mapstructure:"sink"` // local, s3 or blob
	Dir    string         `mapstructure:"dir"`
	URL    string         `mapstructure:"url"`
	Prefix string         `mapstructure:"prefix"`
	S3     S3OutputConfig `mapstructure:"s3"`
}

// VerifyConfig holds the settings of the verify command
type VerifyConfig struct {
	Source       string `mapstructure:"source"` // directory or blob URL; defaults to output.dir
	Compression  string `mapstructure:"compression"`
	Encrypted    bool   `mapstructure:"encrypted"`
	DataEncoding string `mapstructure:"data_encoding"`
	DecryptKeys  bool   `mapstructure:"decrypt_keys"` // unwrap keys through the key source
}

// DKSConfig holds the settings of the stub data key service
type DKSConfig struct {
	BindAddress       string         `mapstructure:"bind_address"`
	LogHealthRequests bool           `mapstructure:"log_health_requests"`
	Keys              LocalKeyConfig `mapstructure:"keys"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	MetricsPath string `mapstructure:"metrics_path"`
	MetricsFile string `mapstructure:"metrics_file"` // textfile written after one-shot runs
}

// Config holds the application configuration
type Config struct {
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"` // "text" (default) or "json"
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds serve-datakeys waits for in-flight requests

	Generate   GenerateConfig   `mapstructure:"generate"`
	KeySource  KeySourceConfig  `mapstructure:"key_source"`
	Output     OutputConfig     `mapstructure:"output"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	DKS        DKSConfig        `mapstructure:"dks"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// InitConfig initializes the configuration system
func InitConfig(cfgFile string) {
	// .env is optional; values already in the environment win
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".hdi-sample-data")
	}

	viper.SetEnvPrefix("HDI")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("shutdown_timeout", 10)

	viper.SetDefault("generate.database", "adb")
	viper.SetDefault("generate.collection", "collection")
	viper.SetDefault("generate.file_count", 10)
	viper.SetDefault("generate.batch_size", 100)
	viper.SetDefault("generate.compress", false)
	viper.SetDefault("generate.compression", "")
	viper.SetDefault("generate.encrypt", true)
	viper.SetDefault("generate.mutations", []string{})
	viper.SetDefault("generate.coalesced_collection", false)
	viper.SetDefault("generate.metadata_schema", string(metadata.SchemaImporter))
	viper.SetDefault("generate.data_encoding", string(output.EncodingRaw))
	viper.SetDefault("generate.seed", 0)

	viper.SetDefault("key_source.type", "http")
	viper.SetDefault("key_source.url", "http://localhost:8090/datakey")
	viper.SetDefault("key_source.timeout", 10)
	viper.SetDefault("key_source.kms.region", "eu-west-2")
	viper.SetDefault("key_source.local.data_key_size", 16)
	viper.SetDefault("key_source.local.kek.type", "aes")
	viper.SetDefault("key_source.local.kek.master_secret", DefaultMasterSecret)

	viper.SetDefault("output.sink", "local")
	viper.SetDefault("output.dir", ".")
	viper.SetDefault("output.s3.region", "eu-west-2")
	viper.SetDefault("output.s3.force_path_style", true)
	viper.SetDefault("output.s3.create_bucket", false)

	viper.SetDefault("verify.compression", "")
	viper.SetDefault("verify.encrypted", true)
	viper.SetDefault("verify.data_encoding", string(output.EncodingRaw))
	viper.SetDefault("verify.decrypt_keys", false)

	viper.SetDefault("dks.bind_address", "0.0.0.0:8090")
	viper.SetDefault("dks.log_health_requests", false)
	viper.SetDefault("dks.keys.data_key_size", 16)
	viper.SetDefault("dks.keys.kek.type", "aes")
	viper.SetDefault("dks.keys.kek.master_secret", DefaultMasterSecret)

	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.metrics_file", "")
}

func validate(cfg *Config) error {
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (supported: text, json)", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be positive, got %d", cfg.ShutdownTimeout)
	}

	if err := validateGenerate(&cfg.Generate); err != nil {
		return err
	}
	if err := validateKeySource(&cfg.KeySource); err != nil {
		return err
	}
	if err := validateOutput(&cfg.Output); err != nil {
		return err
	}
	if _, err := compression.Lookup(cfg.Verify.CodecName(cfg.Generate)); err != nil {
		return fmt.Errorf("verify.compression: %w", err)
	}
	if _, err := output.ParseDataEncoding(cfg.Verify.DataEncoding); err != nil {
		return fmt.Errorf("verify.data_encoding: %w", err)
	}
	if err := validateLocalKeys("dks.keys", &cfg.DKS.Keys); err != nil {
		return err
	}

	return nil
}

func validateGenerate(g *GenerateConfig) error {
	if g.Database == "" || g.Collection == "" {
		return fmt.Errorf("generate.database and generate.collection are required")
	}
	if g.FileCount < 1 {
		return fmt.Errorf("generate.file_count must be at least 1, got %d", g.FileCount)
	}
	if g.BatchSize < 1 {
		return fmt.Errorf("generate.batch_size must be at least 1, got %d", g.BatchSize)
	}
	if _, err := compression.Lookup(g.CodecName()); err != nil {
		return fmt.Errorf("generate.compression: %w", err)
	}
	if _, err := metadata.ParseSchema(g.MetadataSchema); err != nil {
		return fmt.Errorf("generate.metadata_schema: %w", err)
	}
	if _, err := output.ParseDataEncoding(g.DataEncoding); err != nil {
		return fmt.Errorf("generate.data_encoding: %w", err)
	}
	if _, err := g.ParsedMutations(); err != nil {
		return fmt.Errorf("generate.mutations: %w", err)
	}
	return nil
}

func validateKeySource(k *KeySourceConfig) error {
	switch k.Type {
	case "http":
		if k.URL == "" {
			return fmt.Errorf("key_source.url is required for the http key source")
		}
	case "kms":
		if k.KMS.KeyID == "" {
			return fmt.Errorf("key_source.kms.key_id is required for the kms key source")
		}
	case "local":
		return validateLocalKeys("key_source.local", &k.Local)
	default:
		return fmt.Errorf("unsupported key_source.type %q (supported: http, kms, local)", k.Type)
	}
	if k.Timeout < 1 {
		return fmt.Errorf("key_source.timeout must be at least 1 second")
	}
	return nil
}

func validateLocalKeys(prefix string, l *LocalKeyConfig) error {
	switch l.DataKeySize {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%s.data_key_size must be 16, 24 or 32, got %d", prefix, l.DataKeySize)
	}

	switch l.KEK.Type {
	case "aes":
		if l.KEK.Key == "" && l.KEK.MasterSecret == "" {
			return fmt.Errorf("%s.kek.key or %s.kek.master_secret is required", prefix, prefix)
		}
	case "tink":
		if err := l.KEK.Tink.Validate(); err != nil {
			return fmt.Errorf("%s.kek.tink: %w", prefix, err)
		}
	case "keeper":
		if l.KEK.KeeperURL == "" {
			return fmt.Errorf("%s.kek.keeper_url is required for the keeper KEK", prefix)
		}
	default:
		return fmt.Errorf("unsupported %s.kek.type %q (supported: aes, tink, keeper)", prefix, l.KEK.Type)
	}
	return nil
}

func validateOutput(o *OutputConfig) error {
	switch o.Sink {
	case "local":
		if o.Dir == "" {
			return fmt.Errorf("output.dir is required for the local sink")
		}
	case "s3":
		if o.S3.Bucket == "" {
			return fmt.Errorf("output.s3.bucket is required for the s3 sink")
		}
	case "blob":
		if o.URL == "" {
			return fmt.Errorf("output.url is required for the blob sink")
		}
	default:
		return fmt.Errorf("unsupported output.sink %q (supported: local, s3, blob)", o.Sink)
	}
	return nil
}

// CodecName resolves the compression codec; an explicit codec wins over the compress switch
func (g GenerateConfig) CodecName() string {
	if g.Compression != "" {
		return g.Compression
	}
	if g.Compress {
		return "gzip"
	}
	return "none"
}

// ParsedMutations converts the configured mutation names
func (g GenerateConfig) ParsedMutations() ([]records.Mutation, error) {
	mutations := make([]records.Mutation, 0, len(g.Mutations))
	for _, name := range g.Mutations {
		m, err := records.ParseMutation(name)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, nil
}

// CodecName resolves the codec used to read files back. It follows the
// generate settings unless set explicitly.
func (v VerifyConfig) CodecName(g GenerateConfig) string {
	if v.Compression != "" {
		return v.Compression
	}
	return g.CodecName()
}

// OutputSinkConfig converts the output section for the output package
func (o OutputConfig) OutputSinkConfig() output.Config {
	return output.Config{
		Type:   o.Sink,
		Dir:    o.Dir,
		URL:    o.URL,
		Prefix: o.Prefix,
		S3: output.S3Config{
			Bucket:         o.S3.Bucket,
			Prefix:         o.S3.Prefix,
			Endpoint:       o.S3.Endpoint,
			Region:         o.S3.Region,
			AccessKeyID:    o.S3.AccessKeyID,
			SecretKey:      o.S3.SecretKey,
			ForcePathStyle: o.S3.ForcePathStyle,
			CreateBucket:   o.S3.CreateBucket,
		},
	}
}
