package datakey

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/sirupsen/logrus"
)

// KMSAPI is the subset of the KMS client used here
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSConfig holds the settings for the KMS client
type KMSConfig struct {
	KeyID       string
	Region      string
	Endpoint    string
	AccessKeyID string
	SecretKey   string
}

// NewKMSClient creates a KMS client, optionally pointed at a custom endpoint such as localstack
func NewKMSClient(ctx context.Context, cfg *KMSConfig) (*kms.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return kms.NewFromConfig(awsCfg, func(o *kms.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// KMSProvider issues AES-256 data keys through KMS GenerateDataKey
type KMSProvider struct {
	client KMSAPI
	keyID  string
	logger *logrus.Entry
}

// NewKMSProvider creates a provider generating data keys under keyID
func NewKMSProvider(client KMSAPI, keyID string) *KMSProvider {
	return &KMSProvider{
		client: client,
		keyID:  keyID,
		logger: logrus.WithField("component", "datakey-kms"),
	}
}

// FetchDataKey generates a new data key
func (p *KMSProvider) FetchDataKey(ctx context.Context) (*DataKeyMaterial, error) {
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(p.keyID),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		p.logger.WithError(err).WithField("keyId", p.keyID).Error("GenerateDataKey failed")
		return nil, fmt.Errorf("%w: GenerateDataKey: %v", ErrKeyServiceUnavailable, err)
	}

	keyID := aws.ToString(out.KeyId)
	if keyID == "" {
		keyID = p.keyID
	}

	material := &DataKeyMaterial{
		KeyID:        keyID,
		PlaintextKey: base64.StdEncoding.EncodeToString(out.Plaintext),
		EncryptedKey: base64.StdEncoding.EncodeToString(out.CiphertextBlob),
	}
	if err := material.Validate(); err != nil {
		return nil, err
	}

	return material, nil
}

// DecryptDataKey unwraps a key previously issued by FetchDataKey
func (p *KMSProvider) DecryptDataKey(ctx context.Context, keyID string, encryptedKey string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return "", fmt.Errorf("%w: encrypted key is not base64: %v", ErrInvalidKeyMaterial, err)
	}

	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(keyID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: Decrypt: %v", ErrKeyServiceUnavailable, err)
	}

	return base64.StdEncoding.EncodeToString(out.Plaintext), nil
}

// Name returns the provider name
func (p *KMSProvider) Name() string {
	return "kms"
}
