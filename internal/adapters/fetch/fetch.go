// Package fetch downloads raw bytes for a URL ahead of parsing. This is the
// one C8 capability the pack has no dedicated HTTP client library for beyond
// net/http itself (see DESIGN.md), so it is implemented directly against the
// standard library, grounded on the original Python OxylabsWebReader's
// per-URL failure-isolation behavior (a failed URL yields an error for that
// URL alone, never aborting the batch).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

// Downloader fetches raw bytes for a single URL.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is a Downloader backed by net/http.
type Client struct {
	http    *http.Client
	maxSize int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithMaxSize caps the number of bytes read from any single response body.
// Zero means unlimited.
func WithMaxSize(n int64) Option {
	return func(cl *Client) { cl.maxSize = n }
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements Downloader.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, rerr.Wrap(rerr.DownloadFailed, fmt.Sprintf("fetch: build request for %s", url), err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rerr.Wrap(rerr.DownloadFailed, fmt.Sprintf("fetch: request failed for %s", url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rerr.Wrap(rerr.DownloadFailed, fmt.Sprintf("fetch: %s returned status %d", url, resp.StatusCode), nil)
	}

	body := io.Reader(resp.Body)
	if c.maxSize > 0 {
		body = io.LimitReader(resp.Body, c.maxSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, rerr.Wrap(rerr.DownloadFailed, fmt.Sprintf("fetch: read body for %s", url), err)
	}
	return data, nil
}
