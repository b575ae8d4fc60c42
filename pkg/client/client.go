package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to a toystudio daemon over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultTimeout bounds one request. Install and upgrade block on git and uv,
// so it is generous.
const DefaultTimeout = 30 * time.Minute

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: DefaultTimeout,
	}
}

// DefaultTLSConfig returns default TLS client configuration
func DefaultTLSConfig() Config {
	return Config{
		BaseURL: "https://localhost:8080/api",
		Timeout: DefaultTimeout,
		TLS: &TLSClientConfig{
			Enabled: true,
		},
	}
}

// InsecureConfig returns insecure client configuration (skip TLS verification)
func InsecureConfig() Config {
	return Config{
		BaseURL:  "https://localhost:8080/api",
		Timeout:  DefaultTimeout,
		Insecure: true,
	}
}

// New creates a new toystudio API client with TLS support
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	// Setup HTTP transport with TLS configuration
	transport := &http.Transport{}

	// Configure TLS if needed
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, fmt.Errorf("TLS setup failed: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// ListProducts returns the catalog, or only installed products.
func (c *Client) ListProducts(ctx context.Context, installedOnly bool) ([]Product, error) {
	u := c.baseURL + "/products"
	if installedOnly {
		u += "?installed=true"
	}
	var out []Product
	return out, c.doRequest(ctx, http.MethodGet, u, nil, &out)
}

// Status returns the live status of one product.
func (c *Client) Status(ctx context.Context, id string) (*ProductStatus, error) {
	var st ProductStatus
	if err := c.doRequest(ctx, http.MethodGet, c.productURL(id, ""), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Install(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "install", id)
}
func (c *Client) Reinstall(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "reinstall", id)
}
func (c *Client) Uninstall(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "uninstall", id)
}
func (c *Client) Upgrade(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "upgrade", id)
}
func (c *Client) Startup(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "startup", id)
}
func (c *Client) Shutdown(ctx context.Context, id string) error {
	return c.lifecycle(ctx, "shutdown", id)
}

func (c *Client) lifecycle(ctx context.Context, op, id string) error {
	c.logger.Debug("Product operation", "op", op, "id", id)
	if err := c.doRequest(ctx, http.MethodPost, c.productURL(id, op), nil, nil); err != nil {
		return err
	}
	c.logger.Debug("Product operation completed", "op", op, "id", id)
	return nil
}

// Seed asks the daemon to copy manifests from an absolute directory on its host.
func (c *Client) Seed(ctx context.Context, dir string) ([]string, error) {
	data, err := json.Marshal(map[string]string{"dir": dir})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var out struct {
		Added []string `json:"added"`
	}
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/seed", data, &out); err != nil {
		return nil, err
	}
	return out.Added, nil
}

// Open reveals a directory of the daemon's host in its file manager.
func (c *Client) Open(ctx context.Context, target string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/open?target="+url.QueryEscape(target), nil, nil)
}

// UVCacheDir returns uv's cache directory on the daemon host.
func (c *Client) UVCacheDir(ctx context.Context) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	return out.Value, c.doRequest(ctx, http.MethodGet, c.baseURL+"/uv/cache-dir", nil, &out)
}

// UVPythons lists the uv-managed interpreters on the daemon host.
func (c *Client) UVPythons(ctx context.Context) ([]Python, error) {
	var out []Python
	return out, c.doRequest(ctx, http.MethodGet, c.baseURL+"/uv/pythons", nil, &out)
}

// History returns lifecycle events, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]Event, error) {
	v := url.Values{}
	if q.Product != "" {
		v.Set("product", q.Product)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	u := c.baseURL + "/history"
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	var out []Event
	return out, c.doRequest(ctx, http.MethodGet, u, nil, &out)
}

func (c *Client) productURL(id, op string) string {
	u := c.baseURL + "/products/" + url.PathEscape(id)
	if op != "" {
		u += "/" + op
	}
	return u
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	// Handle insecure mode (skip verification)
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	// Configure TLS settings
	if config.TLS != nil {
		// Skip verification if requested
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}

		// Set server name for verification
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}

		// Load CA certificate if provided
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}

		// Load client certificate if provided
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}

// doRequest performs HTTP request with common error handling and decodes
// a successful response into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-200 answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Message
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}

	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
