package manifest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultUserAgent identifies the updater to the origin.
	DefaultUserAgent = "cinedb-updater/1.0 (+https://github.com/vmunix/cinedb)"

	defaultConnectTimeout = 15 * time.Second
	defaultReadTimeout    = 20 * time.Second

	maxManifestBytes = 1 << 20
)

// Client fetches the manifest from a well-known URL.
// It issues exactly one request per Fetch; retries are the caller's policy.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeouts sets the connect and read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.httpClient = NewHTTPClient(connect, read)
		c.httpClient.Timeout = connect + read
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a manifest client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		userAgent: DefaultUserAgent,
		log:       slog.Default(),
	}
	WithTimeouts(defaultConnectTimeout, defaultReadTimeout)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the manifest URL.
func (c *Client) URL() string { return c.url }

// Fetch retrieves and parses the manifest.
// Transport failures and non-2xx responses wrap ErrNetwork; bad bodies wrap ErrParse.
func (c *Client) Fetch(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	m, err := Parse(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("manifest fetched",
		"version", m.Version,
		"dialect", m.Dialect,
		"size_bytes", m.SizeBytes,
		"compressed", m.Compressed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return m, nil
}

// NewHTTPClient builds a client with a bounded connect timeout and a bounded
// wait for response headers. It sets no overall deadline, so large bodies can
// stream as long as data keeps arriving.
func NewHTTPClient(connect, read time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport}
}
