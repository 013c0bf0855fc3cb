// Package parse defines the document-parsing boundary (spec.md §4.8): the
// out-of-scope "Document parsing service" turns raw downloaded bytes into
// markdown content plus any embedded assets worth surfacing in the report.
package parse

import "context"

// Request carries the bytes to parse and their provenance.
type Request struct {
	Filename string
	MimeType string
	Content  []byte
}

// Asset is an extracted sub-resource (e.g. an embedded image) the caller may
// decide to select for inclusion in the report, per EvidenceItem.Asset.
type Asset struct {
	ID          string
	Type        string
	URL         string
	Description string
}

// Result is the parsed document.
type Result struct {
	Markdown string
	Assets   []Asset
}

// Parser turns downloaded bytes into markdown content and extracted assets.
type Parser interface {
	Parse(ctx context.Context, req Request) (Result, error)
}
