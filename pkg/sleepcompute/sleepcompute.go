// Package sleepcompute runs the background graph-maintenance cycle: a
// snapshot followed by consolidation, metrics refresh, typed-relation
// extraction, orphan detection, stale-edge decay, anchor promotion, and a
// duplicate scan. Zero LLM cost — pure graph math over the store. This
// package is the synchronously-callable compute core; the interval/
// threshold trigger that decides when to call it lives one layer up.
package sleepcompute

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"github.com/hippomem/hippomem/pkg/graphmetrics"
	"github.com/hippomem/hippomem/pkg/memlog"
	"github.com/hippomem/hippomem/pkg/store"
)

// Defaults for every step, overridable via Config.
const (
	DefaultClusterSimilarity = 0.75
	DefaultClusterMinSize    = 3
	DefaultChainMaxGapDays   = 7
	DefaultStaleEdgeDays     = 90
	DefaultOrphanMinLinks    = 1
	DefaultDuplicateThresh   = 0.95
	DefaultMaxSnapshots      = 7
	DefaultDecayFactor       = 0.95

	ConsolidationWeight = 0.9
	TemporalChainWeight = 0.95
	ModelRelationWeight = 0.6

	metadataLastSleepAt = "last_sleep_at"
)

// relationRules maps a pair of shared-entity types to the typed relation
// asserted between the two notes that mention them, per the rule-based
// extractor (§4.13 step 4). Order of the pair is not significant; both
// orientations are registered.
var relationRules = map[[2]store.EntityType]store.EdgeType{
	{store.EntityPerson, store.EntityOrganization}: "works_for",
	{store.EntityOrganization, store.EntityPerson}: "works_for",
	{store.EntityTech, store.EntityTech}:           "depends_on",
	{store.EntityPerson, store.EntityProject}:       "contributes_to",
	{store.EntityProject, store.EntityPerson}:       "contributes_to",
	{store.EntityPerson, store.EntityLocation}:       "located_in",
	{store.EntityLocation, store.EntityPerson}:       "located_in",
}

// RelationExtractor is the pluggable model-based relation extractor for
// step 5. A nil Extractor is a no-op, matching §4.7's missing-NER-model
// story: the feature degrades gracefully rather than failing the cycle.
type RelationExtractor interface {
	// Extract returns (subject, relation, object) triples found in text.
	Extract(ctx context.Context, text string) ([]RelationTriple, error)
}

// RelationTriple is one (subject, relation, object) assertion.
type RelationTriple struct {
	Subject  string
	Relation string
	Object   string
}

// Config tunes every step's thresholds; zero-value fields fall back to
// the package defaults.
type Config struct {
	ClusterSimilarity float64
	ClusterMinSize    int
	ChainMaxGapDays   int
	StaleEdgeDays     int
	OrphanMinLinks    int
	DuplicateThresh   float64
	MaxSnapshots      int
	DecayFactor       float64
	SnapshotDir       string
}

func (c Config) withDefaults() Config {
	if c.ClusterSimilarity == 0 {
		c.ClusterSimilarity = DefaultClusterSimilarity
	}
	if c.ClusterMinSize == 0 {
		c.ClusterMinSize = DefaultClusterMinSize
	}
	if c.ChainMaxGapDays == 0 {
		c.ChainMaxGapDays = DefaultChainMaxGapDays
	}
	if c.StaleEdgeDays == 0 {
		c.StaleEdgeDays = DefaultStaleEdgeDays
	}
	if c.OrphanMinLinks == 0 {
		c.OrphanMinLinks = DefaultOrphanMinLinks
	}
	if c.DuplicateThresh == 0 {
		c.DuplicateThresh = DefaultDuplicateThresh
	}
	if c.MaxSnapshots == 0 {
		c.MaxSnapshots = DefaultMaxSnapshots
	}
	if c.DecayFactor == 0 {
		c.DecayFactor = DefaultDecayFactor
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "."
	}
	return c
}

// Pipeline runs the sleep-compute cycle against a store and the shared
// graph-metrics cache.
type Pipeline struct {
	store     *store.Store
	metrics   *graphmetrics.Metrics
	extractor RelationExtractor
	log       memlog.Logger
	cfg       Config
}

// New builds a Pipeline. extractor may be nil (step 5 becomes a no-op).
func New(s *store.Store, metrics *graphmetrics.Metrics, extractor RelationExtractor, log memlog.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = memlog.Nop()
	}
	return &Pipeline{store: s, metrics: metrics, extractor: extractor, log: log, cfg: cfg.withDefaults()}
}

// StepResult reports one step's outcome; Err is non-nil if the step
// failed — later steps still run (§4.13 preamble).
type StepResult struct {
	Name string
	Data map[string]any
	Err  error
}

// Report is the outcome of one full sleep-compute cycle.
type Report struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	SnapshotPath string
	Steps        []StepResult
}

// Run executes the full 10-step cycle. Individual step failures are
// captured in the returned Report rather than aborting the cycle. With
// dryRun set, every step that would write to the store instead reports
// what it would have done and leaves the database untouched — no
// snapshot is taken and last_sleep_at is not advanced.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}

	if dryRun {
		report.Steps = append(report.Steps, StepResult{Name: "snapshot", Data: map[string]any{"skipped": "dry_run"}})
	} else {
		snapPath, err := p.stepSnapshot(ctx)
		report.SnapshotPath = snapPath
		report.Steps = append(report.Steps, StepResult{Name: "snapshot", Data: map[string]any{"path": snapPath}, Err: err})
		if err != nil {
			p.log.Warn("sleep-compute snapshot failed, continuing without rollback point", "err", err)
		}
	}

	report.Steps = append(report.Steps, p.run(ctx, "consolidation", func(ctx context.Context) (map[string]any, error) {
		return p.stepConsolidation(ctx, dryRun)
	}))
	report.Steps = append(report.Steps, p.run(ctx, "graph_metrics", p.stepGraphMetrics))
	report.Steps = append(report.Steps, p.run(ctx, "relation_rules", func(ctx context.Context) (map[string]any, error) {
		return p.stepRuleRelations(ctx, dryRun)
	}))
	report.Steps = append(report.Steps, p.run(ctx, "relation_model", func(ctx context.Context) (map[string]any, error) {
		return p.stepModelRelations(ctx, dryRun)
	}))
	report.Steps = append(report.Steps, p.run(ctx, "orphans", p.stepOrphans))
	report.Steps = append(report.Steps, p.run(ctx, "decay", func(ctx context.Context) (map[string]any, error) {
		return p.stepDecay(ctx, dryRun)
	}))
	report.Steps = append(report.Steps, p.run(ctx, "anchor_boost", func(ctx context.Context) (map[string]any, error) {
		return p.stepAnchorBoost(ctx, dryRun)
	}))
	report.Steps = append(report.Steps, p.run(ctx, "duplicates", p.stepDuplicates))

	now := time.Now().UTC()
	if dryRun {
		report.FinishedAt = now
		return report, nil
	}
	if err := p.store.SetMetadata(ctx, metadataLastSleepAt, now.Format(time.RFC3339)); err != nil {
		p.log.Error("failed to record last_sleep_at", "err", err)
	}
	report.FinishedAt = now

	anyCritical := false
	for _, s := range report.Steps {
		if s.Err != nil && (s.Name == "decay" || s.Name == "consolidation") {
			anyCritical = true
		}
	}
	if anyCritical && report.SnapshotPath != "" {
		p.log.Warn("sleep-compute had critical step failures; manual rollback available", "snapshot", report.SnapshotPath)
	}

	return report, nil
}

func (p *Pipeline) run(ctx context.Context, name string, fn func(context.Context) (map[string]any, error)) StepResult {
	data, err := fn(ctx)
	if err != nil {
		p.log.Error("sleep-compute step failed", "step", name, "err", err)
	}
	return StepResult{Name: name, Data: data, Err: err}
}

// stepSnapshot is step 1: a timestamped VACUUM INTO copy, pruned to the
// last MaxSnapshots.
func (p *Pipeline) stepSnapshot(ctx context.Context) (string, error) {
	name := strftime.Format("hippomem-%Y%m%d-%H%M%S.db", time.Now().UTC())
	path := filepath.Join(p.cfg.SnapshotDir, name)
	if err := p.store.SnapshotTo(ctx, path); err != nil {
		return "", err
	}
	if err := p.pruneSnapshots(); err != nil {
		p.log.Warn("snapshot retention prune failed", "err", err)
	}
	return path, nil
}

func (p *Pipeline) pruneSnapshots() error {
	matches, err := filepath.Glob(filepath.Join(p.cfg.SnapshotDir, "hippomem-*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= p.cfg.MaxSnapshots {
		return nil
	}
	sort.Strings(matches)
	excess := matches[:len(matches)-p.cfg.MaxSnapshots]
	for _, m := range excess {
		_ = os.Remove(m)
	}
	return nil
}

// stepConsolidation is step 2: thematic clusters and temporal chains.
func (p *Pipeline) stepConsolidation(ctx context.Context, dryRun bool) (map[string]any, error) {
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}

	clusters := findThematicClusters(notes, p.cfg.ClusterSimilarity, p.cfg.ClusterMinSize)
	chains := findTemporalChains(notes, p.cfg.ChainMaxGapDays)

	if dryRun {
		links := 0
		for _, cluster := range clusters {
			if n := len(cluster); n > 1 {
				links += n * (n - 1) / 2
			}
		}
		for _, chain := range chains {
			if n := len(chain); n > 1 {
				links += n - 1
			}
		}
		return map[string]any{"clusters": len(clusters), "chains": len(chains), "links_created": 0, "would_create": links}, nil
	}

	linksCreated := 0
	for _, cluster := range clusters {
		for i := 0; i < len(cluster); i++ {
			for j := i + 1; j < len(cluster); j++ {
				edge := &store.Edge{SourceID: cluster[i], TargetID: cluster[j], Weight: ConsolidationWeight, Type: store.EdgeConsolidation}
				if err := p.store.CreateMirroredEdge(ctx, edge); err != nil {
					return nil, err
				}
				linksCreated++
			}
		}
	}
	for _, chain := range chains {
		for i := 0; i < len(chain)-1; i++ {
			edge := &store.Edge{SourceID: chain[i], TargetID: chain[i+1], Weight: TemporalChainWeight, Type: store.EdgeTemporalChain}
			if err := p.store.CreateMirroredEdge(ctx, edge); err != nil {
				return nil, err
			}
			linksCreated++
		}
	}

	return map[string]any{"clusters": len(clusters), "chains": len(chains), "links_created": linksCreated}, nil
}

// stepGraphMetrics is step 3: recompute PageRank + communities.
func (p *Pipeline) stepGraphMetrics(ctx context.Context) (map[string]any, error) {
	if p.metrics == nil {
		return map[string]any{"skipped": true}, nil
	}
	nodes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := p.store.GetAllEdges(ctx)
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]int64, len(nodes))
	for i, n := range nodes {
		nodeIDs[i] = n.ID
	}
	wedges := make([]graphmetrics.WeightedEdge, len(edges))
	for i, e := range edges {
		wedges[i] = graphmetrics.WeightedEdge{Source: e.SourceID, Target: e.TargetID, Weight: float64(e.Weight)}
	}
	p.metrics.Compute(wedges, nodeIDs)
	stats := p.metrics.GetStats()
	return map[string]any{"nodes": len(nodeIDs), "edges": len(wedges), "communities": stats.Communities, "isolated": stats.IsolatedNodes}, nil
}

// stepRuleRelations is step 4: fixed entity-type-pair rule table, never
// overwriting an existing edge.
func (p *Pipeline) stepRuleRelations(ctx context.Context, dryRun bool) (map[string]any, error) {
	pairs, err := p.sharedEntityPairs(ctx)
	if err != nil {
		return nil, err
	}

	created := 0
	for _, pr := range pairs {
		relation, ok := relationRules[[2]store.EntityType{pr.sourceType, pr.targetType}]
		if !ok {
			continue
		}
		exists, _, err := p.store.EdgeExists(ctx, pr.source, pr.target)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if dryRun {
			created++
			continue
		}
		edge := &store.Edge{SourceID: pr.source, TargetID: pr.target, Weight: ModelRelationWeight, Type: relation}
		if err := p.store.CreateEdge(ctx, edge); err != nil {
			return nil, err
		}
		created++
	}
	if dryRun {
		return map[string]any{"created": 0, "would_create": created}, nil
	}
	return map[string]any{"created": created}, nil
}

// stepModelRelations is step 5: a pluggable zero-shot extractor over
// notes added since the last sleep. A nil extractor is a no-op.
func (p *Pipeline) stepModelRelations(ctx context.Context, dryRun bool) (map[string]any, error) {
	if p.extractor == nil {
		return map[string]any{"skipped": true, "reason": "no relation model configured"}, nil
	}

	since := p.lastSleepAt(ctx)
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}

	created, conflicts := 0, 0
	for _, n := range notes {
		if n.CreatedAt.Before(since) {
			continue
		}
		triples, err := p.extractor.Extract(ctx, n.Content)
		if err != nil {
			p.log.Warn("relation model extraction failed", "node", n.ID, "err", err)
			continue
		}
		for _, tr := range triples {
			subjEntity, err := p.store.GetOrCreateEntity(ctx, tr.Subject, store.EntityConcept)
			if err != nil {
				return nil, err
			}
			objEntity, err := p.store.GetOrCreateEntity(ctx, tr.Object, store.EntityConcept)
			if err != nil {
				return nil, err
			}
			subjNodes, err := p.store.GetNodesByEntity(ctx, subjEntity)
			if err != nil {
				return nil, err
			}
			objNodes, err := p.store.GetNodesByEntity(ctx, objEntity)
			if err != nil {
				return nil, err
			}
			c, cf, err := p.linkRelationCandidates(ctx, subjNodes, objNodes, store.EdgeType(tr.Relation), dryRun)
			if err != nil {
				return nil, err
			}
			created += c
			conflicts += cf
		}
	}
	if dryRun {
		return map[string]any{"created": 0, "would_create": created, "conflicts": conflicts}, nil
	}
	return map[string]any{"created": created, "conflicts": conflicts}, nil
}

// linkRelationCandidates inserts an edge for up to the first 3x3 source
// x target note pairs from the entity index (§4.13 step 5 cap). With
// dryRun it only counts what would be created, and still records
// conflicts since those are detection, not mutation.
func (p *Pipeline) linkRelationCandidates(ctx context.Context, sources, targets []int64, relation store.EdgeType, dryRun bool) (int, int, error) {
	created, conflicts := 0, 0
	for i, src := range sources {
		if i >= 3 {
			break
		}
		for j, tgt := range targets {
			if j >= 3 {
				break
			}
			if src == tgt {
				continue
			}
			exists, existingType, err := p.store.EdgeExists(ctx, src, tgt)
			if err != nil {
				return created, conflicts, err
			}
			if exists {
				if existingType != relation {
					if !dryRun {
						if err := p.store.RecordEdgeHistory(ctx, &store.EdgeHistoryEntry{
							SourceID: src, TargetID: tgt, OldType: existingType, NewType: relation, Kind: "type_conflict",
						}); err != nil {
							return created, conflicts, err
						}
					}
					conflicts++
				}
				continue
			}
			if dryRun {
				created++
				continue
			}
			edge := &store.Edge{SourceID: src, TargetID: tgt, Weight: ModelRelationWeight, Type: relation}
			if err := p.store.CreateEdge(ctx, edge); err != nil {
				return created, conflicts, err
			}
			created++
		}
	}
	return created, conflicts, nil
}

// stepOrphans is step 6: report-only, never deletes.
func (p *Pipeline) stepOrphans(ctx context.Context) (map[string]any, error) {
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := p.store.GetAllEdges(ctx)
	if err != nil {
		return nil, err
	}
	linkCount := make(map[int64]int, len(notes))
	for _, e := range edges {
		linkCount[e.SourceID]++
		linkCount[e.TargetID]++
	}

	var orphans []int64
	for _, n := range notes {
		if linkCount[n.ID] <= p.cfg.OrphanMinLinks {
			orphans = append(orphans, n.ID)
		}
	}
	return map[string]any{"orphans": len(orphans), "ids": orphans}, nil
}

// stepDecay is step 7: gentle edge-weight aging, skipping protected
// categories.
func (p *Pipeline) stepDecay(ctx context.Context, dryRun bool) (map[string]any, error) {
	edges, err := p.store.GetAllEdges(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	category := make(map[int64]string, len(notes))
	for _, n := range notes {
		category[n.ID] = n.Category
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -p.cfg.StaleEdgeDays)
	decayed := 0
	for _, e := range edges {
		if e.CreatedAt.After(cutoff) || e.Weight <= 0.3 {
			continue
		}
		if store.ProtectedCategories[category[e.SourceID]] || store.ProtectedCategories[category[e.TargetID]] {
			continue
		}
		if dryRun {
			decayed++
			continue
		}
		newWeight := e.Weight * float32(p.cfg.DecayFactor)
		if err := p.store.SetEdgeWeight(ctx, e.SourceID, e.TargetID, e.Type, newWeight); err != nil {
			return nil, err
		}
		decayed++
	}
	if dryRun {
		return map[string]any{"decayed": 0, "would_decay": decayed}, nil
	}
	return map[string]any{"decayed": decayed}, nil
}

// stepAnchorBoost is step 8: protected-category notes are promoted to
// critical importance.
func (p *Pipeline) stepAnchorBoost(ctx context.Context, dryRun bool) (map[string]any, error) {
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	promoted := 0
	for _, n := range notes {
		if store.ProtectedCategories[n.Category] && n.Importance != store.ImportanceCritical {
			if dryRun {
				promoted++
				continue
			}
			if err := p.store.SetImportance(ctx, n.ID, store.ImportanceCritical); err != nil {
				return nil, err
			}
			promoted++
		}
	}
	if dryRun {
		return map[string]any{"promoted": 0, "would_promote": promoted}, nil
	}
	return map[string]any{"promoted": promoted}, nil
}

// stepDuplicates is step 9: sliding-window cosine check, report only.
func (p *Pipeline) stepDuplicates(ctx context.Context) (map[string]any, error) {
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	type pair struct {
		A, B       int64
		Similarity float64
	}
	var dupes []pair
	checked := 0
	for i := range notes {
		if notes[i].Embedding == nil {
			continue
		}
		for j := i + 1; j < len(notes) && j < i+50; j++ {
			if notes[j].Embedding == nil {
				continue
			}
			sim := cosineSimilarity(notes[i].Embedding, notes[j].Embedding)
			checked++
			if sim >= p.cfg.DuplicateThresh {
				dupes = append(dupes, pair{notes[i].ID, notes[j].ID, sim})
			}
		}
	}
	return map[string]any{"checked": checked, "duplicates": len(dupes)}, nil
}

func (p *Pipeline) lastSleepAt(ctx context.Context) time.Time {
	val, ok, err := p.store.GetMetadata(ctx, metadataLastSleepAt)
	if err != nil || !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}
	}
	return t
}

type entityPair struct {
	source, target         int64
	sourceType, targetType store.EntityType
}

// sharedEntityPairs enumerates every pair of distinct notes that share an
// entity, for the rule-based extractor (§4.13 step 4). Both sides of a
// pair carry the shared entity's own type, so only rules whose two types
// are equal can match.
func (p *Pipeline) sharedEntityPairs(ctx context.Context) ([]entityPair, error) {
	notes, err := p.store.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}

	entityToNodes := map[int64][]int64{}
	entityType := map[int64]store.EntityType{}
	for _, n := range notes {
		ents, err := p.store.GetEntitiesForNode(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			entityToNodes[e.ID] = append(entityToNodes[e.ID], n.ID)
			entityType[e.ID] = e.Type
		}
	}

	var pairs []entityPair
	for entID, nodeIDs := range entityToNodes {
		t := entityType[entID]
		for i := 0; i < len(nodeIDs); i++ {
			for j := i + 1; j < len(nodeIDs); j++ {
				pairs = append(pairs,
					entityPair{source: nodeIDs[i], target: nodeIDs[j], sourceType: t, targetType: t},
					entityPair{source: nodeIDs[j], target: nodeIDs[i], sourceType: t, targetType: t})
			}
		}
	}
	return pairs, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func findThematicClusters(notes []*store.Note, minSimilarity float64, minSize int) [][]int64 {
	processed := map[int64]bool{}
	var clusters [][]int64
	for i, n := range notes {
		if processed[n.ID] || n.Embedding == nil {
			continue
		}
		cluster := []int64{n.ID}
		for j := i + 1; j < len(notes); j++ {
			other := notes[j]
			if processed[other.ID] || other.Embedding == nil {
				continue
			}
			if cosineSimilarity(n.Embedding, other.Embedding) >= minSimilarity {
				cluster = append(cluster, other.ID)
				processed[other.ID] = true
			}
		}
		if len(cluster) >= minSize {
			clusters = append(clusters, cluster)
			processed[n.ID] = true
		}
	}
	return clusters
}

func findTemporalChains(notes []*store.Note, maxGapDays int) [][]int64 {
	sorted := append([]*store.Note(nil), notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	byCategory := map[string][]*store.Note{}
	for _, n := range sorted {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}

	var chains [][]int64
	maxGap := time.Duration(maxGapDays) * 24 * time.Hour
	for _, group := range byCategory {
		if len(group) < 2 {
			continue
		}
		var chain []int64
		var lastTime time.Time
		for _, n := range group {
			if len(chain) == 0 {
				chain = []int64{n.ID}
				lastTime = n.CreatedAt
				continue
			}
			if n.CreatedAt.Sub(lastTime) <= maxGap {
				chain = append(chain, n.ID)
			} else {
				if len(chain) >= 3 {
					chains = append(chains, chain)
				}
				chain = []int64{n.ID}
			}
			lastTime = n.CreatedAt
		}
		if len(chain) >= 3 {
			chains = append(chains, chain)
		}
	}
	return chains
}
