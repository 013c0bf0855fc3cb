// Package filestore defines the FileStore boundary (spec.md §4.8):
// upload(bytes, filename) -> file_id, and the reverse lookup the writer
// pipeline needs when an asset download is later surfaced in the report.
package filestore

import "context"

// Store uploads and retrieves content-addressed bytes.
type Store interface {
	// Upload stores data under filename and returns an opaque file_id.
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	// Download returns the bytes previously stored under fileID.
	Download(ctx context.Context, fileID string) ([]byte, error)
}
