// Package rerank re-scores the top candidates from blend/RRF fusion using
// a pluggable cross-encoder-shaped scorer, blending its score back into
// the final ranking. When no scorer is configured the pass is a
// passthrough: candidates keep their fusion score and order.
package rerank

import (
	"context"
	"sort"
)

// TopN is the default number of top-fused candidates sent through rerank.
const TopN = 20

// Weight is the default blend weight given to the reranker's score.
const Weight = 0.3

// Candidate is one fused search result eligible for reranking.
type Candidate struct {
	NodeID  int64
	Score   float64
	Content string
}

// Scorer scores (query, content) pairs, one score per candidate in order.
// Implementations may call out to a cross-encoder model; the zero value
// of this package (nil Scorer) is a valid passthrough configuration.
type Scorer interface {
	Score(ctx context.Context, query string, contents []string) ([]float64, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, query string, contents []string) ([]float64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	return f(ctx, query, contents)
}

// Reranker blends a Scorer's output back into fusion scores.
type Reranker struct {
	scorer Scorer
	weight float64
}

// New builds a Reranker. A nil scorer makes Rerank a passthrough.
func New(scorer Scorer, weight float64) *Reranker {
	if weight <= 0 {
		weight = Weight
	}
	return &Reranker{scorer: scorer, weight: weight}
}

// Rerank reorders candidates by (1-weight)*fusionScore + weight*rerankScore,
// truncating to topK. With no scorer configured, or on scorer failure, it
// falls back to the original fusion order truncated to topK.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) []Candidate {
	if r == nil || r.scorer == nil || len(candidates) == 0 {
		return passthrough(candidates, topK)
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}

	raw, err := r.scorer.Score(ctx, query, contents)
	if err != nil || len(raw) != len(candidates) {
		return passthrough(candidates, topK)
	}

	normalized := minMaxNormalize(raw)

	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		combined := (1-r.weight)*c.Score + r.weight*normalized[i]
		out[i] = Candidate{NodeID: c.NodeID, Score: combined, Content: c.Content}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

func passthrough(candidates []Candidate, topK int) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max > min {
		for i, s := range scores {
			out[i] = (s - min) / (max - min)
		}
	} else {
		for i := range scores {
			out[i] = 0.5
		}
	}
	return out
}
