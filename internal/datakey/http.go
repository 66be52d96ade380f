package datakey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxResponseSize bounds the key service response body
const maxResponseSize = 64 * 1024

// HTTPProvider fetches data keys from a data key service with a single GET
type HTTPProvider struct {
	url    string
	client *http.Client
	logger *logrus.Entry
}

// NewHTTPProvider creates a provider for the given data key service URL.
// The URL is used as is; no path is appended.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logrus.WithField("component", "datakey-http"),
	}
}

// FetchDataKey requests a new data key. 200 and 201 are both accepted.
func (p *HTTPProvider) FetchDataKey(ctx context.Context) (*DataKeyMaterial, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key service request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("url", p.url).Error("Data key service request failed")
		return nil, fmt.Errorf("%w: %v", ErrKeyServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.logger.WithFields(logrus.Fields{
			"url":    p.url,
			"status": resp.StatusCode,
		}).Error("Data key service returned unexpected status")
		return nil, fmt.Errorf("%w: status %d from %s", ErrKeyServiceUnavailable, resp.StatusCode, p.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrKeyServiceUnavailable, err)
	}

	var material DataKeyMaterial
	if err := json.Unmarshal(body, &material); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidKeyMaterial, err)
	}
	if err := material.Validate(); err != nil {
		return nil, err
	}

	p.logger.WithField("keyId", material.KeyID).Debug("Fetched data key")
	return &material, nil
}

// DecryptDataKey asks the service to unwrap encryptedKey. The decrypt endpoint
// is the key URL followed by /actions/decrypt.
func (p *HTTPProvider) DecryptDataKey(ctx context.Context, keyID string, encryptedKey string) (string, error) {
	endpoint := strings.TrimSuffix(p.url, "/") + "/actions/decrypt?keyId=" + url.QueryEscape(keyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encryptedKey))
	if err != nil {
		return "", fmt.Errorf("failed to create decrypt request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: key service rejected key %s with status %d", ErrInvalidKeyMaterial, keyID, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d from %s", ErrKeyServiceUnavailable, resp.StatusCode, endpoint)
	}

	var decrypted struct {
		PlaintextKey string `json:"plaintextDataKey"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&decrypted); err != nil {
		return "", fmt.Errorf("%w: failed to decode decrypt response: %v", ErrInvalidKeyMaterial, err)
	}
	if decrypted.PlaintextKey == "" {
		return "", fmt.Errorf("%w: empty plaintext key", ErrInvalidKeyMaterial)
	}

	return decrypted.PlaintextKey, nil
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return "http"
}
