// Package retrieval implements the search pipeline: decompose, embed,
// spread activation, blend signals, rerank, filter, track access, budget.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hippomem/hippomem/pkg/adjacency"
	"github.com/hippomem/hippomem/pkg/ann"
	"github.com/hippomem/hippomem/pkg/bm25"
	"github.com/hippomem/hippomem/pkg/embedding"
	"github.com/hippomem/hippomem/pkg/fusion"
	"github.com/hippomem/hippomem/pkg/querydecomp"
	"github.com/hippomem/hippomem/pkg/rerank"
	"github.com/hippomem/hippomem/pkg/store"
	"github.com/hippomem/hippomem/pkg/temporal"
)

const (
	DefaultActivationIterations = 3
	DefaultActivationDecay      = 0.7
	DefaultHalfLifeDays         = 30.0
	DefaultRecencyFloor         = 0.1
	DefaultAlpha                = 0.6
	DefaultGamma                = 0.0
	DefaultDelta                = 0.0
	AutoTemporalDelta            = 0.15
	DefaultLimit                 = 5
	DefaultMaxResults            = 50
)

// Options tunes a single Search call; zero values fall back to pipeline
// defaults.
type Options struct {
	Limit              int
	MaxResults         int
	DetailMode         string // "brief" | "full"
	CategoryFilter     string
	TimeAfter          *time.Time
	TimeBefore         *time.Time
	EntityTypeFilter   string
	ActivationIterations int
	ActivationDecay      float64
	Weights              fusion.Weights
	FusionMethod         fusion.Method
	RerankEnabled        bool
}

// Pipeline wires together every component a search needs.
type Pipeline struct {
	store     *store.Store
	embedder  embedding.Embedder
	ann       *ann.Index
	adjacency *adjacency.Cache
	bm25      *bm25.Index
	reranker  *rerank.Reranker
}

// New builds a retrieval pipeline over already-populated indexes.
func New(s *store.Store, embedder embedding.Embedder, annIdx *ann.Index, adj *adjacency.Cache, bm25Idx *bm25.Index, reranker *rerank.Reranker) *Pipeline {
	return &Pipeline{store: s, embedder: embedder, ann: annIdx, adjacency: adj, bm25: bm25Idx, reranker: reranker}
}

// Result is one scored, filtered search hit.
type Result struct {
	NodeID      int64
	Score       float64
	Note        *store.Note
	FirstLine   string
	FullLength  int
	TotalLines  int
}

// Response is the full Search outcome.
type Response struct {
	Results        []Result
	TotalActivated int
	Truncated      bool
}

// Search runs the full 14-stage retrieval pipeline.
func (p *Pipeline) Search(ctx context.Context, query string, opts Options) (Response, error) {
	opts = withDefaults(opts)

	// Stage 1: decompose
	decomp := querydecomp.Decompose(query)

	// Stage 2: embed
	queryEmb, err := p.embedder.Encode(decomp.ContentQuery)
	if err != nil {
		return Response{}, err
	}

	// Stage 3: initial activation
	semMatches := p.ann.Search(queryEmb, opts.Limit*3, 0)
	activation := make(map[int64]float64, len(semMatches))
	semScore := make(map[int64]float64, len(semMatches))
	for _, m := range semMatches {
		activation[m.NodeID] = float64(m.Similarity)
		semScore[m.NodeID] = float64(m.Similarity)
	}

	// Stage 4: spreading activation
	truncated := false
	for i := 0; i < opts.ActivationIterations; i++ {
		select {
		case <-ctx.Done():
			truncated = true
		default:
		}
		if truncated {
			break
		}
		activation = spreadOnce(activation, p.adjacency, opts.ActivationDecay)
	}

	allNodes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return Response{}, err
	}
	nodeMap := make(map[int64]*store.Note, len(allNodes))
	for _, n := range allNodes {
		nodeMap[n.ID] = n
	}

	// Stage 5: per-node boosts
	for id, a := range activation {
		n, ok := nodeMap[id]
		if !ok {
			continue
		}
		activation[id] = a * recencyFactor(n.LastAccessed, n.CreatedAt, DefaultHalfLifeDays) * importanceFactor(n.Importance, n.AccessCount)
	}

	// Stage 6: normalize
	spreadNorm := normalizeMap(activation)
	semNorm := normalizeMap(semScore)

	// Stage 7: lexical signal
	bm25Scores := map[int64]float64{}
	if opts.Weights.Gamma > 0 {
		raw := p.bm25.Search(decomp.ContentQuery, 100)
		bm25Scores = normalizeMap(raw)
	}

	// Stage 8: temporal signal
	temporalScores, err := p.temporalSignal(ctx, query, decomp, semNorm, bm25Scores)
	if err != nil {
		return Response{}, err
	}

	effectiveDelta := opts.Weights.Delta
	if decomp.IsTemporal && effectiveDelta == 0 {
		effectiveDelta = AutoTemporalDelta
	}
	weights := fusion.Weights{Alpha: opts.Weights.Alpha, Gamma: opts.Weights.Gamma, Delta: effectiveDelta}

	// Stage 9: fusion
	var blended map[int64]float64
	if opts.FusionMethod == fusion.MethodRRF {
		blended = fusion.RRF([]fusion.Signal{
			{Name: "semantic", Scores: semNorm},
			{Name: "spreading", Scores: spreadNorm},
			{Name: "bm25", Scores: bm25Scores},
			{Name: "temporal", Scores: temporalScores},
		}, fusion.DefaultRRFK)
	} else {
		blended = fusion.Blend(semNorm, spreadNorm, bm25Scores, temporalScores, weights)
	}

	totalActivated := len(blended)

	// Stage 10: hub penalty
	entityCounts, err := p.store.GetEntityCountsBatch(ctx)
	if err != nil {
		return Response{}, err
	}
	fusion.ApplyHubPenalty(blended, entityCounts)

	ranked := fusion.Sort(blended)

	// Stage 11: optional rerank
	if opts.RerankEnabled && p.reranker != nil {
		topN := rerank.TopN
		if topN > len(ranked) {
			topN = len(ranked)
		}
		candidates := make([]rerank.Candidate, 0, topN)
		for _, r := range ranked[:topN] {
			n := nodeMap[r.NodeID]
			content := ""
			if n != nil {
				content = n.Content
			}
			candidates = append(candidates, rerank.Candidate{NodeID: r.NodeID, Score: r.Score, Content: content})
		}
		select {
		case <-ctx.Done():
			// skip rerank, keep pre-rerank order
		default:
			reranked := p.reranker.Rerank(ctx, query, candidates, topN)
			rerankedIDs := make(map[int64]bool, len(reranked))
			merged := make([]fusion.Ranked, 0, len(ranked))
			for _, c := range reranked {
				merged = append(merged, fusion.Ranked{NodeID: c.NodeID, Score: c.Score})
				rerankedIDs[c.NodeID] = true
			}
			for _, r := range ranked {
				if !rerankedIDs[r.NodeID] {
					merged = append(merged, r)
				}
			}
			ranked = merged
		}
	}

	// Stage 12: filters
	filtered := make([]fusion.Ranked, 0, len(ranked))
	for _, r := range ranked {
		n, ok := nodeMap[r.NodeID]
		if !ok {
			continue
		}
		if !passesFilters(n, opts) {
			continue
		}
		if opts.EntityTypeFilter != "" {
			matches, err := p.hasEntityType(ctx, n.ID, opts.EntityTypeFilter)
			if err != nil {
				return Response{}, err
			}
			if !matches {
				continue
			}
		}
		filtered = append(filtered, r)
	}

	limit := opts.Limit
	if limit > opts.MaxResults {
		limit = opts.MaxResults
	}
	if limit > len(filtered) {
		limit = len(filtered)
	}
	top := filtered[:limit]

	// Stage 13: access tracking, batched
	ids := make([]int64, len(top))
	for i, r := range top {
		ids[i] = r.NodeID
	}
	if len(ids) > 0 {
		if err := p.store.TouchNodes(ctx, ids, time.Now().UTC()); err != nil {
			return Response{}, err
		}
	}

	// Stage 14: budgeting
	results := make([]Result, 0, len(top))
	for _, r := range top {
		n := nodeMap[r.NodeID]
		res := Result{NodeID: r.NodeID, Score: r.Score, Note: n}
		if opts.DetailMode == "brief" {
			res.FirstLine, res.FullLength, res.TotalLines = briefSummary(n.Content)
			res.Note = nil
		}
		results = append(results, res)
	}

	if totalActivated > len(results) {
		truncated = true
	}

	return Response{Results: results, TotalActivated: totalActivated, Truncated: truncated}, nil
}

func withDefaults(o Options) Options {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.ActivationIterations == 0 {
		o.ActivationIterations = DefaultActivationIterations
	}
	if o.ActivationDecay == 0 {
		o.ActivationDecay = DefaultActivationDecay
	}
	if o.Weights.Alpha == 0 {
		o.Weights.Alpha = DefaultAlpha
	}
	if o.FusionMethod == "" {
		o.FusionMethod = fusion.MethodBlend
	}
	return o
}

func spreadOnce(activation map[int64]float64, adj *adjacency.Cache, decay float64) map[int64]float64 {
	next := make(map[int64]float64)
	for nodeID, a := range activation {
		if a < 0.01 {
			continue
		}
		next[nodeID] += a * decay
		for _, nb := range adj.Neighbors(nodeID) {
			next[nb.NodeID] += a * float64(nb.Weight) * decay
		}
	}
	return normalizeMap(next)
}

func normalizeMap(m map[int64]float64) map[int64]float64 {
	if len(m) == 0 {
		return m
	}
	max := 0.0
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return m
	}
	out := make(map[int64]float64, len(m))
	for k, v := range m {
		out[k] = v / max
	}
	return out
}

func recencyFactor(lastAccessed, created time.Time, halfLifeDays float64) float64 {
	ts := lastAccessed
	if ts.IsZero() {
		ts = created
	}
	if ts.IsZero() {
		return 0.5
	}
	ageDays := time.Since(ts).Hours() / 24
	decay := math.Pow(0.5, ageDays/halfLifeDays)
	if decay < DefaultRecencyFloor {
		return DefaultRecencyFloor
	}
	return decay
}

func importanceFactor(importance store.Importance, accessCount int) float64 {
	base := 1.0
	switch importance {
	case store.ImportanceCritical:
		base = 1.5
	case store.ImportanceLow:
		base = 0.7
	}
	boost := float64(accessCount) * 0.01
	if boost > 0.2 {
		boost = 0.2
	}
	return base + boost
}

func (p *Pipeline) temporalSignal(ctx context.Context, rawQuery string, decomp querydecomp.Decomposition, semNorm, bm25Scores map[int64]float64) (map[int64]float64, error) {
	scores := map[int64]float64{}

	_, qStart, qEnd := temporal.Extract(rawQuery, time.Now().UTC())
	if qStart != nil && qEnd != nil {
		ranges, err := p.store.GetNodesWithEventRange(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			overlap := temporal.Overlap(*qStart, *qEnd, r.Start, r.End)
			if overlap > 0 {
				scores[r.NodeID] = overlap
			}
		}
	}

	if decomp.IsTemporal && decomp.Direction != "" {
		candidateIDs := make(map[int64]bool)
		for id := range semNorm {
			candidateIDs[id] = true
		}
		for id := range bm25Scores {
			candidateIDs[id] = true
		}
		if len(candidateIDs) > 0 {
			allNodes, err := p.store.GetAllNodes(ctx)
			if err != nil {
				return nil, err
			}
			var timestamps []time.Time
			nodeTS := make(map[int64]time.Time)
			for _, n := range allNodes {
				if !candidateIDs[n.ID] {
					continue
				}
				ts := n.CreatedAt
				if n.EventStart != nil {
					ts = *n.EventStart
				}
				nodeTS[n.ID] = ts
				timestamps = append(timestamps, ts)
			}
			for id, ts := range nodeTS {
				order := querydecomp.OrderScore(ts, decomp.Direction, timestamps)
				if order > scores[id] {
					scores[id] = order
				}
			}
		}
	}

	return scores, nil
}

func (p *Pipeline) hasEntityType(ctx context.Context, nodeID int64, entityType string) (bool, error) {
	entities, err := p.store.GetEntitiesForNode(ctx, nodeID)
	if err != nil {
		return false, err
	}
	for _, e := range entities {
		if string(e.Type) == entityType {
			return true, nil
		}
	}
	return false, nil
}

func passesFilters(n *store.Note, opts Options) bool {
	if opts.CategoryFilter != "" && n.Category != opts.CategoryFilter {
		return false
	}
	if opts.TimeAfter != nil && n.CreatedAt.Before(*opts.TimeAfter) {
		return false
	}
	if opts.TimeBefore != nil && n.CreatedAt.After(*opts.TimeBefore) {
		return false
	}
	return true
}

func briefSummary(content string) (firstLine string, fullLength, totalLines int) {
	lines := strings.Split(content, "\n")
	totalLines = len(lines)
	fullLength = len(content)
	firstLine = lines[0]
	if len(firstLine) > 150 {
		firstLine = firstLine[:150]
	}
	return
}
