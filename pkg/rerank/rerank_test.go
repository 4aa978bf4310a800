package rerank

import (
	"context"
	"errors"
	"testing"
)

func TestPassthroughWithNilScorer(t *testing.T) {
	r := New(nil, Weight)
	cands := []Candidate{{NodeID: 1, Score: 0.9}, {NodeID: 2, Score: 0.5}}
	out := r.Rerank(context.Background(), "query", cands, 5)
	if len(out) != 2 || out[0].NodeID != 1 {
		t.Errorf("expected passthrough order, got %+v", out)
	}
}

func TestRerankBlendsScores(t *testing.T) {
	scorer := ScorerFunc(func(ctx context.Context, query string, contents []string) ([]float64, error) {
		return []float64{0.1, 0.9}, nil
	})
	r := New(scorer, 0.5)
	cands := []Candidate{{NodeID: 1, Score: 0.9, Content: "a"}, {NodeID: 2, Score: 0.1, Content: "b"}}
	out := r.Rerank(context.Background(), "query", cands, 5)
	if out[0].NodeID != 2 {
		t.Errorf("expected node 2 to win after rerank blend, got %+v", out)
	}
}

func TestRerankFallsBackOnScorerError(t *testing.T) {
	scorer := ScorerFunc(func(ctx context.Context, query string, contents []string) ([]float64, error) {
		return nil, errors.New("model unavailable")
	})
	r := New(scorer, Weight)
	cands := []Candidate{{NodeID: 1, Score: 0.9}, {NodeID: 2, Score: 0.5}}
	out := r.Rerank(context.Background(), "query", cands, 5)
	if len(out) != 2 || out[0].NodeID != 1 {
		t.Errorf("expected passthrough fallback, got %+v", out)
	}
}

func TestRerankTruncatesToTopK(t *testing.T) {
	r := New(nil, Weight)
	cands := []Candidate{{NodeID: 1}, {NodeID: 2}, {NodeID: 3}}
	out := r.Rerank(context.Background(), "q", cands, 2)
	if len(out) != 2 {
		t.Errorf("expected topK truncation, got %d results", len(out))
	}
}
