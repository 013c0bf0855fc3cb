// Package oxylabs implements search.Google against the Oxylabs Realtime SERP
// API, grounded on the original Python implementation's WebSearchService
// (services/web_search_service.py), which wraps
// llama_index.readers.oxylabs.OxylabsGoogleSearchReader with
// OXYLABS_USERNAME/OXYLABS_PASSWORD credentials read from the environment.
// Outbound request rate is capped with golang.org/x/time/rate, the same
// library the teacher's pack uses for adaptive LLM rate limiting
// (features/model/middleware).
package oxylabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/time/rate"

	"github.com/deepresearch/agentrunner/internal/adapters/search"
	"github.com/deepresearch/agentrunner/internal/rerr"
)

const realtimeEndpoint = "https://realtime.oxylabs.io/v1/queries"

// HTTPDoer is the subset of *http.Client used, so tests can substitute a
// fake transport without starting a real server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements search.Google against Oxylabs.
type Client struct {
	username string
	password string
	http     HTTPDoer
	limiter  *rate.Limiter
}

// Options configures the Oxylabs client.
type Options struct {
	Username string
	Password string
	// HTTP defaults to http.DefaultClient.
	HTTP HTTPDoer
	// RequestsPerSecond caps outbound SERP request rate. Zero disables the
	// limiter.
	RequestsPerSecond float64
	// Burst sizes the limiter's token bucket; defaults to 1.
	Burst int
}

// New constructs a Client from explicit options.
func New(opts Options) (*Client, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("oxylabs: username and password are required")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{username: opts.Username, password: opts.Password, http: httpClient, limiter: limiter}, nil
}

// NewFromEnv reads OXYLABS_USERNAME and OXYLABS_PASSWORD per spec.md §6.
func NewFromEnv(requestsPerSecond float64) (*Client, error) {
	return New(Options{
		Username:          os.Getenv("OXYLABS_USERNAME"),
		Password:          os.Getenv("OXYLABS_PASSWORD"),
		RequestsPerSecond: requestsPerSecond,
	})
}

type queryRequest struct {
	Source string `json:"source"`
	Query  string `json:"query"`
	Parse  bool   `json:"parse"`
	Pages  int    `json:"pages"`
}

type queryResponse struct {
	Results []struct {
		Content struct {
			Results struct {
				Organic []organicResult `json:"organic"`
			} `json:"results"`
		} `json:"content"`
	} `json:"results"`
}

type organicResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"desc"`
}

// Search implements search.Google.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]search.Result, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, rerr.Wrap(rerr.Cancelled, "oxylabs: rate limiter wait", err)
		}
	}

	body, err := json.Marshal(queryRequest{Source: "google_search", Query: query, Parse: true, Pages: 1})
	if err != nil {
		return nil, 0, rerr.Wrap(rerr.Invariant, "oxylabs: encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, realtimeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, rerr.Wrap(rerr.Invariant, "oxylabs: build request", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 1, rerr.Wrap(rerr.ToolError, "oxylabs: request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 1, rerr.Wrap(rerr.ToolError, fmt.Sprintf("oxylabs: unexpected status %d: %s", resp.StatusCode, data), nil)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 1, rerr.Wrap(rerr.ParseFailed, "oxylabs: decode response", err)
	}

	var out []search.Result
	for _, page := range parsed.Results {
		for _, r := range page.Content.Results.Organic {
			out = append(out, search.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
			if len(out) >= maxResults {
				return out, 1, nil
			}
		}
	}
	return out, 1, nil
}
