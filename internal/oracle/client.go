// Package oracle is the HTTP client for the remote question-answering
// service. It speaks two form-encoded endpoints, /chatbot and /get, and
// treats any HTTP response as a completed request.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// IngestPath registers a repository reference with the service.
	IngestPath = "/chatbot"
	// AskPath returns a plain-text answer for a chat message.
	AskPath = "/get"

	// IngestField carries the repository URL.
	IngestField = "question"
	// AskField carries the chat message.
	AskField = "msg"

	formContentType = "application/x-www-form-urlencoded"
)

// TransportError reports that a request did not complete: the connection
// failed, the context ended, or the response body could not be read.
// HTTP status codes never produce a TransportError.
type TransportError struct {
	Op    string
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle %s %s: %v", e.Op, e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the scheme and host of the service, without trailing slash.
	BaseURL string
	// Timeout bounds a whole request. Zero means no timeout.
	Timeout time.Duration
}

// Client calls the remote service. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for cfg. A nil logger falls back to slog.Default.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ingest posts question=<repoURL> to /chatbot. The response is drained and
// discarded whatever its status; only transport failures are returned.
func (c *Client) Ingest(ctx context.Context, repoURL string) error {
	resp, err := c.postForm(ctx, IngestPath, IngestField, repoURL)
	if err != nil {
		return err
	}
	defer closeBody(c.logger, resp)

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.logger.Debug("oracle: failed to drain ingest response", "error", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("oracle: ingest returned error status, ignoring",
			"status", resp.StatusCode,
			"repo_url", repoURL,
		)
	}
	return nil
}

// Ask posts msg=<text> to /get and returns the raw response body as the
// answer, whatever the HTTP status.
func (c *Client) Ask(ctx context.Context, text string) (string, error) {
	resp, err := c.postForm(ctx, AskPath, AskField, text)
	if err != nil {
		return "", err
	}
	defer closeBody(c.logger, resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read", URL: c.baseURL + AskPath, Cause: err}
	}
	return string(body), nil
}

func (c *Client) postForm(ctx context.Context, path, field, value string) (*http.Response, error) {
	endpoint := c.baseURL + path
	body := url.Values{field: {value}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build", URL: endpoint, Cause: err}
	}
	req.Header.Set("Content-Type", formContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "post", URL: endpoint, Cause: err}
	}
	return resp, nil
}

func closeBody(logger *slog.Logger, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logger.Debug("oracle: failed to close response body", "error", err)
	}
}
