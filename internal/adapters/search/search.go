// Package search defines the outbound web-search boundary (spec.md §4.8):
// Search.google(query, max_results) -> (results, requests_made).
package search

import "context"

// Result is a single SERP hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Google abstracts a Google-SERP-shaped search provider.
type Google interface {
	// Search returns up to maxResults ordered hits for query, plus the
	// number of upstream requests the call made (adapters that paginate
	// internally may issue more than one).
	Search(ctx context.Context, query string, maxResults int) ([]Result, int, error)
}
