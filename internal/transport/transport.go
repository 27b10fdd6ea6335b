// Package transport fetches remote payloads over HTTP with bounded retries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// Default transport settings.
const (
	DefaultTimeout    = 90 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 5 * time.Second
	DefaultUserAgent  = "caaspp-ingest/1.0"
)

// Config holds transport settings.
type Config struct {
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first failure.
	Retries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	UserAgent  string
}

// StatusError is returned for non-success HTTP responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Fetcher is the contract consumed by the locator and the orchestrator.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is an HTTP Fetcher.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. Zero-valued settings fall back to the defaults.
// If logger is nil, a discard logger is used.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch downloads url. Transient failures (timeouts, dropped connections, 5xx, 429) are
// retried up to the configured bound with a constant delay; other failures
// return immediately. A successful empty body is returned as is.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(c.cfg.Retries), retry.NewConstant(c.cfg.RetryDelay))

	var body []byte
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, err := c.get(ctx, url)
		if err != nil {
			if isTransient(err) {
				c.logger.Warn("fetch failed, will retry",
					slog.String("url", url),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempt(s): %w", url, attempt, err)
	}

	c.logger.Debug("fetched", slog.String("url", url), slog.Int("bytes", len(body)), slog.Int("attempts", attempt))
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return b, nil
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Dropped connections and truncated bodies. A closed keep-alive
	// connection surfaces as a bare io.EOF from the client.
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ Fetcher = (*Client)(nil)
