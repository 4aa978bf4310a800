package sleepcompute

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hippomem/hippomem/pkg/embedding"
	"github.com/hippomem/hippomem/pkg/entity"
	"github.com/hippomem/hippomem/pkg/graphmetrics"
	"github.com/hippomem/hippomem/pkg/ingest"
	"github.com/hippomem/hippomem/pkg/store"

	"github.com/hippomem/hippomem/pkg/adjacency"
	"github.com/hippomem/hippomem/pkg/ann"
	"github.com/hippomem/hippomem/pkg/bm25"
)

func newTestRig(t *testing.T) (*store.Store, *ingest.Pipeline, *Pipeline) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	embedder := embedding.NewHashEmbedder(64, "test-hash-v1")
	annIdx := ann.New()
	adj := adjacency.New()
	bm25Idx := bm25.New(bm25.DefaultK1, bm25.DefaultB)
	ing := ingest.New(s, embedder, entity.NewRuleExtractor(), annIdx, adj, bm25Idx, nil, ingest.Config{})

	metrics := graphmetrics.New()
	sc := New(s, metrics, nil, nil, Config{SnapshotDir: t.TempDir()})
	return s, ing, sc
}

func TestRunCompletesAllSteps(t *testing.T) {
	_, ing, sc := newTestRig(t)
	ctx := context.Background()

	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Shipped the new search ranking pipeline"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Had lunch with the team to celebrate the launch"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	report, err := sc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Steps) != 9 {
		t.Errorf("len(Steps) = %d, want 9", len(report.Steps))
	}
	if report.SnapshotPath == "" {
		t.Error("expected a snapshot path")
	}
}

func TestAnchorBoostPromotesProtectedCategory(t *testing.T) {
	s, ing, sc := newTestRig(t)
	ctx := context.Background()

	res, err := ing.AddNote(ctx, ingest.Input{Content: "A milestone worth remembering forever", Category: "milestone"})
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	if _, err := sc.Run(ctx, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	note, err := s.GetNode(ctx, res.NodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if note.Importance != store.ImportanceCritical {
		t.Errorf("Importance = %q, want critical", note.Importance)
	}
}

func TestDecaySkipsProtectedCategoryEdges(t *testing.T) {
	s, ing, sc := newTestRig(t)
	ctx := context.Background()

	a, err := ing.AddNote(ctx, ingest.Input{Content: "Reflecting on what I learned this year", Category: "self-reflection"})
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	b, err := ing.AddNote(ctx, ingest.Input{Content: "Another note about the same self reflection topic", Category: "self-reflection"})
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	edge := &store.Edge{SourceID: a.NodeID, TargetID: b.NodeID, Weight: 0.8, Type: store.EdgeSemantic, CreatedAt: time.Now().AddDate(0, 0, -200)}
	if err := s.CreateEdge(ctx, edge); err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}

	if _, err := sc.Run(ctx, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	exists, _, err := s.EdgeExists(ctx, a.NodeID, b.NodeID)
	if err != nil {
		t.Fatalf("EdgeExists() error = %v", err)
	}
	if !exists {
		t.Fatal("expected edge to still exist")
	}
}

func TestConsolidationLinksThematicCluster(t *testing.T) {
	_, ing, sc := newTestRig(t)
	ctx := context.Background()

	contents := []string{
		"The quarterly planning review covered roadmap priorities and staffing",
		"Roadmap priorities and staffing came up again during the planning sync",
		"Staffing and roadmap priorities dominated this quarter's planning discussion",
	}
	for _, c := range contents {
		if _, err := ing.AddNote(ctx, ingest.Input{Content: c}); err != nil {
			t.Fatalf("AddNote() error = %v", err)
		}
	}

	report, err := sc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, s := range report.Steps {
		if s.Name == "consolidation" && s.Err != nil {
			t.Errorf("consolidation step failed: %v", s.Err)
		}
	}
}

func TestDryRunDoesNotPromoteOrDecay(t *testing.T) {
	s, ing, sc := newTestRig(t)
	ctx := context.Background()

	res, err := ing.AddNote(ctx, ingest.Input{Content: "A milestone that a dry run must not touch", Category: "milestone"})
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	report, err := sc.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run(dryRun) error = %v", err)
	}
	if report.SnapshotPath != "" {
		t.Error("expected no snapshot on a dry run")
	}

	note, err := s.GetNode(ctx, res.NodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if note.Importance == store.ImportanceCritical {
		t.Error("dry run should not have promoted importance")
	}

	for _, step := range report.Steps {
		if step.Name == "anchor_boost" {
			if promoted, _ := step.Data["promoted"].(int); promoted != 0 {
				t.Errorf("anchor_boost promoted = %d, want 0 on dry run", promoted)
			}
			if wouldPromote, _ := step.Data["would_promote"].(int); wouldPromote == 0 {
				t.Error("expected would_promote > 0 on dry run")
			}
		}
	}
}
