package hippomem

import (
	"context"
	"fmt"
	"time"

	"github.com/hippomem/hippomem/pkg/adjacency"
	"github.com/hippomem/hippomem/pkg/ann"
	"github.com/hippomem/hippomem/pkg/bm25"
	"github.com/hippomem/hippomem/pkg/embedding"
	"github.com/hippomem/hippomem/pkg/entity"
	"github.com/hippomem/hippomem/pkg/graphmetrics"
	"github.com/hippomem/hippomem/pkg/ingest"
	"github.com/hippomem/hippomem/pkg/memlog"
	"github.com/hippomem/hippomem/pkg/querydecomp"
	"github.com/hippomem/hippomem/pkg/rerank"
	"github.com/hippomem/hippomem/pkg/retrieval"
	"github.com/hippomem/hippomem/pkg/searchlog"
	"github.com/hippomem/hippomem/pkg/sleepcompute"
	"github.com/hippomem/hippomem/pkg/store"
)

// Engine is the assembled memory system: persistent store plus every
// in-RAM index and pipeline built over it.
type Engine struct {
	cfg Config
	log memlog.Logger

	store    *store.Store
	embedder embedding.Embedder
	ann      *ann.Index
	adj      *adjacency.Cache
	bm25     *bm25.Index
	metrics  *graphmetrics.Metrics

	ingestPipeline    *ingest.Pipeline
	retrievalPipeline *retrieval.Pipeline
	searchLogger      *searchlog.Logger
	sleepPipeline     *sleepcompute.Pipeline
}

// Option customizes Open beyond Config's environment-driven defaults.
type Option func(*engineOptions)

type engineOptions struct {
	embedder          embedding.Embedder
	entityExtractor   entity.Extractor
	rerankScorer      rerank.Scorer
	relationExtractor sleepcompute.RelationExtractor
	log               memlog.Logger
}

// WithEmbedder overrides the default hashing embedder with a real model
// client.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *engineOptions) { o.embedder = e }
}

// WithEntityExtractor overrides the default rule-based entity extractor.
func WithEntityExtractor(e entity.Extractor) Option {
	return func(o *engineOptions) { o.entityExtractor = e }
}

// WithRerankScorer plugs a cross-encoder scorer into the rerank stage;
// without one, RerankEnabled in search options has no effect.
func WithRerankScorer(s rerank.Scorer) Option {
	return func(o *engineOptions) { o.rerankScorer = s }
}

// WithRelationExtractor plugs a zero-shot relation model into
// sleep-compute step 5; without one, that step is a no-op.
func WithRelationExtractor(e sleepcompute.RelationExtractor) Option {
	return func(o *engineOptions) { o.relationExtractor = e }
}

// WithLogger overrides the engine's structured logger (default: no-op).
func WithLogger(l memlog.Logger) Option {
	return func(o *engineOptions) { o.log = l }
}

// Open opens (creating if necessary) the store at cfg.DBPath and builds
// every in-RAM index from its current contents.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = memlog.Nop()
	}
	if o.embedder == nil {
		o.embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimension, cfg.EmbeddingModel)
	}
	if o.entityExtractor == nil {
		o.entityExtractor = entity.NewRuleExtractor()
	}

	s, err := store.Open(ctx, store.Config{Path: cfg.DBPath, Log: o.log})
	if err != nil {
		return nil, fmt.Errorf("hippomem: open store: %w", err)
	}

	annIdx := ann.New()
	adj := adjacency.New()
	bm25Idx := bm25.New(bm25.DefaultK1, bm25.DefaultB)
	metrics := graphmetrics.New()

	if err := rebuildIndexes(ctx, s, annIdx, adj, bm25Idx, metrics); err != nil {
		s.Close()
		return nil, fmt.Errorf("hippomem: rebuild indexes: %w", err)
	}

	var reranker *rerank.Reranker
	if o.rerankScorer != nil {
		reranker = rerank.New(o.rerankScorer, cfg.RerankWeight)
	}

	e := &Engine{
		cfg:      cfg,
		log:      o.log,
		store:    s,
		embedder: o.embedder,
		ann:      annIdx,
		adj:      adj,
		bm25:     bm25Idx,
		metrics:  metrics,
		ingestPipeline: ingest.New(s, o.embedder, o.entityExtractor, annIdx, adj, bm25Idx, o.log, ingest.Config{
			DuplicateThreshold:  float32(cfg.DuplicateThreshold),
			SimilarThreshold:    float32(cfg.SimilarThreshold),
			SimilarityThreshold: float32(cfg.SimilarityThreshold),
			MaxSemanticLinks:    cfg.MaxSemanticLinks,
		}),
		retrievalPipeline: retrieval.New(s, o.embedder, annIdx, adj, bm25Idx, reranker),
		searchLogger:      searchlog.New(s),
		sleepPipeline: sleepcompute.New(s, metrics, o.relationExtractor, o.log, sleepcompute.Config{
			StaleEdgeDays:  cfg.StaleEdgeDays,
			OrphanMinLinks: cfg.OrphanMinLinks,
			MaxSnapshots:   cfg.MaxSnapshots,
			SnapshotDir:    cfg.SnapshotDir,
		}),
	}
	return e, nil
}

// rebuildIndexes reconstructs every in-RAM index from the store's
// persisted rows, per §6.3: nothing but the store is durable.
func rebuildIndexes(ctx context.Context, s *store.Store, annIdx *ann.Index, adj *adjacency.Cache, bm25Idx *bm25.Index, metrics *graphmetrics.Metrics) error {
	notes, err := s.GetAllNodes(ctx)
	if err != nil {
		return err
	}
	edges, err := s.GetAllEdges(ctx)
	if err != nil {
		return err
	}

	vectors := make(map[int64][]float32, len(notes))
	docs := make([]bm25.Document, 0, len(notes))
	nodeIDs := make([]int64, len(notes))
	for i, n := range notes {
		vectors[n.ID] = n.Embedding
		docs = append(docs, bm25.Document{ID: n.ID, Content: n.Content})
		nodeIDs[i] = n.ID
	}
	annIdx.Build(vectors)
	bm25Idx.Build(docs)

	adjEdges := make([]adjacency.Edge, len(edges))
	wedges := make([]graphmetrics.WeightedEdge, len(edges))
	for i, edg := range edges {
		adjEdges[i] = adjacency.Edge{SourceID: edg.SourceID, TargetID: edg.TargetID, Weight: edg.Weight, Type: string(edg.Type)}
		wedges[i] = graphmetrics.WeightedEdge{Source: edg.SourceID, Target: edg.TargetID, Weight: float64(edg.Weight)}
	}
	adj.Build(adjEdges)
	metrics.Compute(wedges, nodeIDs)

	return nil
}

// Close releases the underlying store handle.
func (e *Engine) Close() error {
	return e.store.Close()
}

// AddResult is the outcome of AddNote.
type AddResult struct {
	NodeID        int64
	EntityLinks   int
	SemanticLinks int
	Similar       []ingest.SimilarNote
}

// AddNoteOptions carries the optional fields of AddNote.
type AddNoteOptions struct {
	Category            string
	Importance          store.Importance
	Force               bool
	EmotionalTone       string
	EmotionalIntensity  float64
	EmotionalReflection string
}

// AddNote ingests one note. A near-duplicate (cosine similarity at or
// above DuplicateThreshold) surfaces as a *store.DuplicateError unless
// opts.Force is set.
func (e *Engine) AddNote(ctx context.Context, content string, opts AddNoteOptions) (AddResult, error) {
	if !e.cfg.EnableEmotionalMemory {
		opts.EmotionalTone = ""
		opts.EmotionalIntensity = 0
		opts.EmotionalReflection = ""
	}
	res, err := e.ingestPipeline.AddNote(ctx, ingest.Input{
		Content:             content,
		Category:            opts.Category,
		Importance:          opts.Importance,
		Force:               opts.Force,
		EmotionalTone:       opts.EmotionalTone,
		EmotionalIntensity:  int(opts.EmotionalIntensity),
		EmotionalReflection: opts.EmotionalReflection,
	})
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{NodeID: res.NodeID, EntityLinks: res.EntityLinks, SemanticLinks: res.SemanticLinks, Similar: res.Similar}, nil
}

// SearchOptions carries the optional fields of Search.
type SearchOptions struct {
	Limit            int
	DetailMode       string
	CategoryFilter   string
	TimeAfter        *time.Time
	TimeBefore       *time.Time
	EntityTypeFilter string
	RerankEnabled    bool
}

// SearchMetadata summarizes a completed search.
type SearchMetadata struct {
	TotalActivated int
	Truncated      bool
	LatencyMS      float64
}

// Search runs the full retrieval pipeline and logs the outcome.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]retrieval.Result, SearchMetadata, error) {
	timer := searchlog.NewTimer()
	isTemporal := querydecomp.IsTemporal(query)

	resp, err := e.retrievalPipeline.Search(ctx, query, retrieval.Options{
		Limit:            opts.Limit,
		DetailMode:       opts.DetailMode,
		CategoryFilter:   opts.CategoryFilter,
		TimeAfter:        opts.TimeAfter,
		TimeBefore:       opts.TimeBefore,
		EntityTypeFilter: opts.EntityTypeFilter,
		Weights:          e.cfg.fusionWeights(),
		FusionMethod:     e.cfg.fusionMethod(),
		RerankEnabled:    opts.RerankEnabled && e.cfg.RerankEnabled,
	})
	if err != nil {
		return nil, SearchMetadata{}, err
	}

	scored := make([]searchlog.ScoredResult, len(resp.Results))
	for i, r := range resp.Results {
		scored[i] = searchlog.ScoredResult{NodeID: r.NodeID, Score: r.Score}
	}
	logErr := e.searchLogger.Finish(ctx, searchlog.Entry{
		Query:          query,
		IsTemporal:     isTemporal,
		Params:         searchlog.Params{Limit: opts.Limit, CategoryFilter: opts.CategoryFilter, TimeAfter: opts.TimeAfter, TimeBefore: opts.TimeBefore, EntityTypeFilter: opts.EntityTypeFilter, DetailMode: opts.DetailMode},
		Results:        scored,
		TotalActivated: resp.TotalActivated,
		Timer:          timer,
		Signals:        searchlog.Signals{Alpha: e.cfg.BlendAlpha, Gamma: e.cfg.BlendGamma, Delta: e.cfg.BlendDelta, RerankEnabled: opts.RerankEnabled},
	})
	if logErr != nil {
		e.log.Warn("search logging failed", "err", logErr)
	}

	return resp.Results, SearchMetadata{TotalActivated: resp.TotalActivated, Truncated: resp.Truncated, LatencyMS: timer.TotalMS()}, nil
}

// UpdateNote changes a note's content and/or category, snapshotting the
// prior state into a new note_version.
func (e *Engine) UpdateNote(ctx context.Context, id int64, content, category *string) error {
	if err := e.store.UpdateNote(ctx, id, content, category); err != nil {
		return err
	}
	if content != nil {
		vec, err := e.embedder.Encode(*content)
		if err != nil {
			return fmt.Errorf("hippomem: re-embed updated note: %w", err)
		}
		e.ann.Add(id, vec)
		e.bm25.AddDocument(id, *content)
	}
	return nil
}

// DeleteNote removes a note and every edge/entity-link referencing it.
func (e *Engine) DeleteNote(ctx context.Context, id int64) (*store.DeletedNote, error) {
	deleted, err := e.store.DeleteNode(ctx, id)
	if err != nil {
		return nil, err
	}
	e.ann.Remove(id)
	e.adj.RemoveNode(id)
	return deleted, nil
}

// SetImportance overrides a note's importance level.
func (e *Engine) SetImportance(ctx context.Context, id int64, level store.Importance) error {
	return e.store.SetImportance(ctx, id, level)
}

// FindSimilar returns the notes whose embedding similarity to content is
// at or above threshold, most similar first, at most limit of them when
// limit is positive.
func (e *Engine) FindSimilar(ctx context.Context, content string, threshold float32, limit int) ([]ann.Match, error) {
	vec, err := e.embedder.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("hippomem: encode query: %w", err)
	}
	return e.ann.Search(vec, limit, threshold), nil
}

// NodeGraph is the set of notes directly connected to one note.
type NodeGraph struct {
	NodeID    int64
	Neighbors []adjacency.Neighbor
	PageRank  float64
	Community int
}

// GetGraph returns id's immediate neighborhood plus its cached graph
// metrics.
func (e *Engine) GetGraph(ctx context.Context, id int64) (NodeGraph, error) {
	return NodeGraph{
		NodeID:    id,
		Neighbors: e.adj.Neighbors(id),
		PageRank:  e.metrics.GetPageRank(id),
		Community: e.metrics.GetCommunity(id),
	}, nil
}

// Stats is the store's size/shape breakdown plus the graph-metrics
// cache's community and PageRank summary.
type Stats struct {
	store.Stats
	Communities int
	TopPageRank []graphmetrics.NodeScore
}

// Stats summarizes the store's current size, last maintenance run, and
// the cached graph metrics (communities, top PageRank).
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := e.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	metricsStats := e.metrics.GetStats()
	return &Stats{
		Stats:       *storeStats,
		Communities: metricsStats.Communities,
		TopPageRank: metricsStats.TopPageRank,
	}, nil
}

// History returns a note's prior versions, most recent first.
func (e *Engine) History(ctx context.Context, id int64, limit int) ([]*store.NoteVersion, error) {
	return e.store.GetNoteHistory(ctx, id, limit)
}

// RestoreVersion rolls a note back to a prior version, snapshotting its
// current state first.
func (e *Engine) RestoreVersion(ctx context.Context, id int64, versionNumber int) (bool, error) {
	ok, err := e.store.RestoreNoteVersion(ctx, id, versionNumber)
	if err != nil || !ok {
		return ok, err
	}
	note, err := e.store.GetNode(ctx, id)
	if err != nil {
		return true, err
	}
	vec, err := e.embedder.Encode(note.Content)
	if err != nil {
		return true, fmt.Errorf("hippomem: re-embed restored note: %w", err)
	}
	e.ann.Add(id, vec)
	e.bm25.AddDocument(id, note.Content)
	return true, nil
}

// SleepCompute runs one full background maintenance cycle. With dryRun
// set, every step reports what it would change without writing to the
// store, and no snapshot is taken.
func (e *Engine) SleepCompute(ctx context.Context, dryRun bool) (sleepcompute.Report, error) {
	return e.sleepPipeline.Run(ctx, dryRun)
}

// SearchStats summarizes search performance over the last `hours` hours
// (default 24): volume, latency percentiles, result quality, and recent
// zero-result queries.
func (e *Engine) SearchStats(ctx context.Context, hours int) (searchlog.Stats, error) {
	return e.searchLogger.Stats(ctx, hours)
}
