// Package remote downloads the remote catalog manifest.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
)

// Client errors.
var (
	ErrNetworkError = errors.New("network error")
	ErrNotFound     = errors.New("manifest not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("server error")
	ErrBadManifest  = errors.New("malformed manifest")
)

// DefaultManifestURL is the default manifest server.
const DefaultManifestURL = "https://catalogs.catalogd.dev/repo"

// ManifestPath is appended to the base URL.
const ManifestPath = "/index.json"

// maxManifestSize caps the manifest body.
const maxManifestSize = 16 << 20

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	// BaseURL is the manifest server root.
	BaseURL string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   DefaultManifestURL,
		Timeout:   30 * time.Second,
		UserAgent: "catalogd/1.0",
	}
}

// Client fetches the manifest over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a client with its own http.Client.
func NewClient(config ClientConfig) *Client {
	return NewClientWithHTTP(config, &http.Client{Timeout: config.Timeout})
}

// NewClientWithHTTP creates a client sharing httpClient.
func NewClientWithHTTP(config ClientConfig, httpClient *http.Client) *Client {
	return &Client{config: config, httpClient: httpClient}
}

// URL returns the manifest location.
func (c *Client) URL() string {
	return strings.TrimRight(c.config.BaseURL, "/") + ManifestPath
}

// Fetch downloads and decodes the manifest. Entries without a package name
// are skipped; languages are normalized.
func (c *Client) Fetch(ctx context.Context) ([]catalog.Remote, error) {
	data, err := c.fetch(ctx, c.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}

	var entries []catalog.Remote
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadManifest, err)
	}

	out := make([]catalog.Remote, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.PkgName) == "" {
			continue
		}
		e.Lang = catalog.NormalizeLang(e.Lang)
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: request creation failed", ErrNetworkError)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrNetworkError)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrBadManifest, maxManifestSize)
	}

	return data, nil
}
