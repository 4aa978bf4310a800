// Package ingest implements the note-ingestion pipeline: embed, dedup,
// persist, extract entities, auto-link by shared entity and by semantic
// similarity.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hippomem/hippomem/pkg/adjacency"
	"github.com/hippomem/hippomem/pkg/ann"
	"github.com/hippomem/hippomem/pkg/bm25"
	"github.com/hippomem/hippomem/pkg/embedding"
	"github.com/hippomem/hippomem/pkg/entity"
	"github.com/hippomem/hippomem/pkg/memlog"
	"github.com/hippomem/hippomem/pkg/store"
	"github.com/hippomem/hippomem/pkg/temporal"
)

const (
	// DefaultDuplicateThreshold blocks ingestion outright above this similarity.
	DefaultDuplicateThreshold = 0.95
	// DefaultSimilarThreshold flags (but does not block) near-duplicates.
	DefaultSimilarThreshold = 0.90
	// DefaultSimilarityThreshold is the minimum cosine similarity to auto-link
	// two notes as semantically related.
	DefaultSimilarityThreshold = 0.5
	// DefaultMaxSemanticLinks caps how many semantic edges one note gets.
	DefaultMaxSemanticLinks = 5
	// EntityLinkWeight is the fixed edge weight given to entity-shared links.
	EntityLinkWeight = 0.6
)

// Config tunes pipeline thresholds; zero values fall back to defaults.
type Config struct {
	DuplicateThreshold  float32
	SimilarThreshold    float32
	SimilarityThreshold float32
	MaxSemanticLinks    int
}

func (c Config) withDefaults() Config {
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = DefaultDuplicateThreshold
	}
	if c.SimilarThreshold == 0 {
		c.SimilarThreshold = DefaultSimilarThreshold
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.MaxSemanticLinks == 0 {
		c.MaxSemanticLinks = DefaultMaxSemanticLinks
	}
	return c
}

// Pipeline wires the store, embedder and in-memory indexes used at
// ingestion time. All indexes are kept consistent incrementally as notes
// are added.
type Pipeline struct {
	store     *store.Store
	embedder  embedding.Embedder
	extractor entity.Extractor
	ann       *ann.Index
	adjacency *adjacency.Cache
	bm25      *bm25.Index
	log       memlog.Logger
	cfg       Config
}

// New builds an ingestion pipeline over already-initialized indexes.
func New(s *store.Store, embedder embedding.Embedder, extractor entity.Extractor, annIdx *ann.Index, adj *adjacency.Cache, bm25Idx *bm25.Index, log memlog.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = memlog.Nop()
	}
	return &Pipeline{
		store: s, embedder: embedder, extractor: extractor,
		ann: annIdx, adjacency: adj, bm25: bm25Idx, log: log, cfg: cfg.withDefaults(),
	}
}

// Result summarizes what AddNote did.
type Result struct {
	NodeID        int64
	EntityLinks   int
	SemanticLinks int
	Similar       []SimilarNote
}

// SimilarNote flags a near-duplicate discovered (but not blocking) during
// semantic linking.
type SimilarNote struct {
	NodeID     int64
	Similarity float32
}

// Input is the caller-supplied content for a new note.
type Input struct {
	Content             string
	Category            string
	Importance          store.Importance
	EmotionalTone       string
	EmotionalIntensity  int
	EmotionalReflection string
	Force               bool
}

// AddNote runs the full ingestion pipeline: embed, dedup-check, persist,
// extract entities and auto-link, find and link semantically similar notes.
func (p *Pipeline) AddNote(ctx context.Context, in Input) (Result, error) {
	fullText := in.Content
	if in.EmotionalTone != "" || in.EmotionalReflection != "" {
		fullText = composeEmotionalText(in.Content, in.EmotionalTone, in.EmotionalReflection)
	}
	vec, err := p.embedder.Encode(fullText)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: encode: %w", err)
	}

	if !in.Force {
		if dupID, sim, found := p.checkDuplicate(vec); found {
			return Result{}, &store.DuplicateError{ExistingID: dupID, Similarity: sim}
		}
	}

	temporalExprs, eventStart, eventEnd := resolveTemporal(in.Content, time.Now().UTC())

	nodeID, err := p.store.CreateNode(ctx, &store.Note{
		Content: in.Content, Category: in.Category, Importance: in.Importance,
		Embedding: vec, EmotionalTone: in.EmotionalTone,
		EmotionalIntensity: float64(in.EmotionalIntensity), EmotionalReflection: in.EmotionalReflection,
		EventStart: eventStart, EventEnd: eventEnd, TemporalExpressions: temporalExprs,
	})
	if err != nil {
		return Result{}, fmt.Errorf("ingest: create node: %w", err)
	}

	p.ann.Add(nodeID, vec)
	p.bm25.AddDocument(nodeID, in.Content)

	entityLinks, err := p.linkEntities(ctx, nodeID, in.Content)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: link entities: %w", err)
	}

	semanticLinks, similar, err := p.linkSemantic(ctx, nodeID, vec)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: link semantic: %w", err)
	}

	return Result{NodeID: nodeID, EntityLinks: entityLinks, SemanticLinks: semanticLinks, Similar: similar}, nil
}

// resolveTemporal extracts every temporal mention in text, plus the
// single narrowest explicit-preferred interval (nil when nothing
// resolved) used as the note's event_start/event_end.
func resolveTemporal(text string, reference time.Time) ([]store.TemporalExpression, *time.Time, *time.Time) {
	found := temporal.ExtractExpressions(text, reference)
	if len(found) == 0 {
		return nil, nil, nil
	}
	out := make([]store.TemporalExpression, len(found))
	for i, e := range found {
		out[i] = store.TemporalExpression{Literal: e.Literal, Kind: e.Kind, Start: e.Start, End: e.End}
	}
	best := found[0]
	return out, &best.Start, &best.End
}

func composeEmotionalText(content, tone, reflection string) string {
	text := content + "\n\n"
	if tone != "" {
		text += "Emotional tone: " + tone + ". "
	}
	text += reflection
	return text
}

func (p *Pipeline) checkDuplicate(vec []float32) (int64, float32, bool) {
	matches := p.ann.Search(vec, 5, p.cfg.DuplicateThreshold)
	if len(matches) == 0 {
		return 0, 0, false
	}
	return matches[0].NodeID, matches[0].Similarity, true
}

func (p *Pipeline) linkEntities(ctx context.Context, nodeID int64, content string) (int, error) {
	found := p.extractor.Extract(content)
	linked := make(map[int64]bool)
	for _, e := range found {
		entityID, err := p.store.GetOrCreateEntity(ctx, e.Surface, store.EntityType(e.Type))
		if err != nil {
			return 0, err
		}
		if err := p.store.LinkNodeToEntity(ctx, nodeID, entityID); err != nil {
			return 0, err
		}
		related, err := p.store.GetNodesByEntity(ctx, entityID)
		if err != nil {
			return 0, err
		}
		for _, r := range related {
			if r == nodeID {
				continue
			}
			edge := &store.Edge{SourceID: nodeID, TargetID: r, Weight: EntityLinkWeight, Type: store.EdgeEntity}
			if err := p.store.CreateMirroredEdge(ctx, edge); err != nil {
				return 0, err
			}
			p.adjacency.AddEdge(adjacency.Edge{SourceID: nodeID, TargetID: r, Weight: EntityLinkWeight, Type: string(store.EdgeEntity)})
			p.adjacency.AddEdge(adjacency.Edge{SourceID: r, TargetID: nodeID, Weight: EntityLinkWeight, Type: string(store.EdgeEntity)})
			linked[r] = true
		}
	}
	return len(linked), nil
}

func (p *Pipeline) linkSemantic(ctx context.Context, nodeID int64, vec []float32) (int, []SimilarNote, error) {
	candidates := p.ann.Search(vec, p.cfg.MaxSemanticLinks*2, p.cfg.SimilarityThreshold)

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.NodeID != nodeID {
			filtered = append(filtered, c)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Similarity > filtered[j].Similarity })
	if len(filtered) > p.cfg.MaxSemanticLinks {
		filtered = filtered[:p.cfg.MaxSemanticLinks]
	}

	var similar []SimilarNote
	for _, c := range filtered {
		edge := &store.Edge{SourceID: nodeID, TargetID: c.NodeID, Weight: c.Similarity, Type: store.EdgeSemantic}
		if err := p.store.CreateMirroredEdge(ctx, edge); err != nil {
			return 0, nil, err
		}
		p.adjacency.AddEdge(adjacency.Edge{SourceID: nodeID, TargetID: c.NodeID, Weight: c.Similarity, Type: string(store.EdgeSemantic)})
		p.adjacency.AddEdge(adjacency.Edge{SourceID: c.NodeID, TargetID: nodeID, Weight: c.Similarity, Type: string(store.EdgeSemantic)})
		if c.Similarity >= p.cfg.SimilarThreshold {
			similar = append(similar, SimilarNote{NodeID: c.NodeID, Similarity: c.Similarity})
		}
	}
	return len(filtered), similar, nil
}
