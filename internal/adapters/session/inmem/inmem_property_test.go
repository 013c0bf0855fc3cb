package inmem

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/deepresearch/agentrunner/internal/adapters/session"
)

// TestUpsertIsIdempotent verifies session.Store's idempotent-upsert contract
// (spec.md §9): upserting the same record one to five times, then a later
// record sharing the same id once, leaves exactly one record behind that
// matches the last write.
func TestUpsertIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated upsert converges to the last write", prop.ForAll(
		func(id, firstPlan, secondPlan string, repeats int) bool {
			if repeats < 0 {
				repeats = -repeats
			}
			repeats = repeats%5 + 1

			s := New()
			ctx := context.Background()

			for i := 0; i < repeats; i++ {
				if err := s.Upsert(ctx, session.Record{ResearchID: id, Plan: firstPlan}); err != nil {
					t.Fatalf("upsert: %v", err)
				}
			}
			if err := s.Upsert(ctx, session.Record{ResearchID: id, Plan: secondPlan}); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			if len(s.records) != 1 {
				return false
			}
			rec, err := s.Load(ctx, id)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			return rec.Plan == secondPlan
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
