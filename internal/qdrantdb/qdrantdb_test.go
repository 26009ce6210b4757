package qdrantdb

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestCollectionName(t *testing.T) {
	if got := CollectionName("ab12cd34"); got != "pdfchat_ab12cd34" {
		t.Errorf("CollectionName = %q", got)
	}
}

func TestToResults(t *testing.T) {
	points := []*qdrant.ScoredPoint{
		{Score: 0.25, Payload: qdrant.NewValueMap(map[string]any{chunkIndexKey: int64(2), contentKey: "two"})},
		{Score: 1, Payload: qdrant.NewValueMap(map[string]any{chunkIndexKey: int64(0), contentKey: "zero"})},
	}
	results := toResults(points)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Index != 2 || results[0].Content != "two" || results[0].Distance != 0.75 {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Index != 0 || results[1].Distance != 0 {
		t.Errorf("results[1] = %+v", results[1])
	}
}
