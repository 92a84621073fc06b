package search

import (
	"context"
	"testing"
)

func TestBoostLiftsKeywordMatchesAndReorders(t *testing.T) {
	lookup := func(ctx context.Context, word string) (map[int64]int, error) {
		if word == "maths" {
			return map[int64]int{2: 100}, nil
		}
		return nil, nil
	}
	s := NewService(nil, nil, lookup)

	results := []Result{
		{ID: 1, Title: "Geometry", Score: 1.0},
		{ID: 2, Title: "Algebra", Score: 0.6},
	}
	s.boost(context.Background(), "maths basics", results)

	// A keyword score of 100 doubles the engine score, so the boosted hit
	// overtakes the raw leader.
	if results[0].ID != 2 {
		t.Fatalf("expected boosted hit first, got id %d", results[0].ID)
	}
	if results[0].Score != 1.2 {
		t.Fatalf("expected doubled score 1.2, got %v", results[0].Score)
	}
	if results[1].Score != 1.0 {
		t.Fatalf("expected unboosted score untouched, got %v", results[1].Score)
	}
}

func TestBoostWithoutLookupLeavesOrder(t *testing.T) {
	s := NewService(nil, nil, nil)
	results := []Result{
		{ID: 1, Score: 1.0},
		{ID: 2, Score: 0.6},
	}
	s.boost(context.Background(), "maths", results)
	if results[0].ID != 1 || results[0].Score != 1.0 {
		t.Fatalf("expected results untouched, got %+v", results)
	}
}

func TestIndexingWithoutMeiliIsANoOp(t *testing.T) {
	s := NewService(nil, nil, nil)
	s.IndexContent(ContentRecord{ID: 1, Name: "Algebra"})
	s.DeleteContent(1)
	s.ReindexAll([]ContentRecord{{ID: 1, Name: "Algebra"}})
}
