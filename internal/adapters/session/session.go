// Package session defines the SessionStore contract (spec.md §4.7/§9): a
// Session Record keyed by research_id with idempotent delete-by-id-then-insert
// upsert semantics.
package session

import "context"

// Record is the persisted snapshot of a planner run.
type Record struct {
	ResearchID   string         `json:"research_id"`
	Status       string         `json:"status"`
	InitialQuery string         `json:"initial_query"`
	Plan         string         `json:"plan"`
	TextConfig   map[string]any `json:"text_config,omitempty"`
}

// Store persists Session Records. Upsert must be idempotent by ResearchID:
// delete any existing record with the same id, then insert, so retries
// converge to exactly one record per id.
type Store interface {
	// Upsert deletes any record sharing r.ResearchID, then inserts r.
	Upsert(ctx context.Context, r Record) error
	// Load returns the record for researchID, or ErrNotFound.
	Load(ctx context.Context, researchID string) (Record, error)
	// DeleteByQuery removes every record for which match returns true.
	// The planner's finalize step does not call it; it calls Upsert.
	DeleteByQuery(ctx context.Context, match func(Record) bool) error
}

// ErrNotFound is returned by Load when no record exists for the given id.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session: record not found" }
