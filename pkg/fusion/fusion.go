// Package fusion combines per-signal retrieval scores (dense semantic,
// spreading activation, BM25, temporal) into one ranked score list, by
// either a weighted blend or Reciprocal Rank Fusion.
package fusion

import "sort"

// Method selects the fusion strategy.
type Method string

const (
	MethodBlend Method = "blend"
	MethodRRF   Method = "rrf"
)

// DefaultRRFK is the standard RRF constant (Cormack et al. 2009).
const DefaultRRFK = 60

// Weights controls the weighted-blend method. Beta (spreading activation)
// is implied: 1 - Alpha - Gamma - Delta, floored at 0.
type Weights struct {
	Alpha float64 // semantic
	Gamma float64 // BM25
	Delta float64 // temporal
}

// Beta returns the implied spreading-activation weight.
func (w Weights) Beta() float64 {
	b := 1.0 - w.Alpha - w.Gamma - w.Delta
	if b < 0 {
		return 0
	}
	return b
}

// Signal is one named score map contributing to fusion.
type Signal struct {
	Name   string
	Scores map[int64]float64
}

// Blend combines signals as alpha*semantic + beta*spreading + gamma*bm25 +
// delta*temporal over the union of node ids in the four maps; a node
// missing from a map contributes 0 for that signal. Any of the maps may
// be nil (use RRF for an open signal set).
func Blend(semantic, spreading, bm25, temporal map[int64]float64, w Weights) map[int64]float64 {
	out := make(map[int64]float64)
	beta := w.Beta()
	seen := make(map[int64]bool)
	for id := range semantic {
		seen[id] = true
	}
	for id := range spreading {
		seen[id] = true
	}
	for id := range bm25 {
		seen[id] = true
	}
	for id := range temporal {
		seen[id] = true
	}
	for id := range seen {
		out[id] = w.Alpha*semantic[id] + beta*spreading[id] + w.Gamma*bm25[id] + w.Delta*temporal[id]
	}
	return out
}

// RRF fuses signals by Reciprocal Rank Fusion: each signal's scores are
// ranked descending, and a node accrues 1/(k+rank+1) per signal it appears
// in with a positive score. Signals with zero/negative scores stop
// contributing ranks at the first non-positive entry, matching the
// reference implementation's per-signal break.
func RRF(signals []Signal, k int) map[int64]float64 {
	if k <= 0 {
		k = DefaultRRFK
	}
	fused := make(map[int64]float64)
	for _, sig := range signals {
		if len(sig.Scores) == 0 {
			continue
		}
		type scored struct {
			id    int64
			score float64
		}
		ranked := make([]scored, 0, len(sig.Scores))
		for id, s := range sig.Scores {
			ranked = append(ranked, scored{id, s})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
		for rank, r := range ranked {
			if r.score <= 0 {
				break
			}
			fused[r.id] += 1.0 / float64(k+rank+1)
		}
	}
	return fused
}

// ApplyHubPenalty scales scores down for nodes with many linked entities,
// to keep generic hub notes from dominating results purely by connectivity:
// a linear penalty of 20/c for entity counts c > 20.
func ApplyHubPenalty(scores map[int64]float64, entityCounts map[int64]int) {
	for id, c := range entityCounts {
		if c > 20 {
			if s, ok := scores[id]; ok {
				scores[id] = s * (20.0 / float64(c))
			}
		}
	}
}

// Ranked is one scored node in descending order.
type Ranked struct {
	NodeID int64
	Score  float64
}

// Sort returns scores as a descending-ranked slice, breaking ties by
// ascending node id for determinism.
func Sort(scores map[int64]float64) []Ranked {
	out := make([]Ranked, 0, len(scores))
	for id, s := range scores {
		out = append(out, Ranked{NodeID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
