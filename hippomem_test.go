package hippomem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hippomem/hippomem/pkg/store"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "hippomem.db")
	cfg.SnapshotDir = filepath.Join(dir, "snapshots")
	cfg.EmbeddingDimension = 64
	return cfg
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenBuildsEmptyEngine(t *testing.T) {
	e := openTestEngine(t)
	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NoteCount != 0 {
		t.Errorf("expected empty store, got %d notes", stats.NoteCount)
	}
}

func TestAddNoteThenSearchFindsIt(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	res, err := e.AddNote(ctx, "The quarterly roadmap review covered staffing plans", AddNoteOptions{Category: "work"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if res.NodeID == 0 {
		t.Fatal("expected a non-zero node id")
	}

	results, meta, err := e.Search(ctx, "roadmap staffing", SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	found := false
	for _, r := range results {
		if r.NodeID == res.NodeID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected node %d among results %+v", res.NodeID, results)
	}
	if meta.TotalActivated == 0 {
		t.Error("expected some nodes to be activated")
	}
}

func TestStatsBreaksDownByCategoryAndType(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.AddNote(ctx, "First work note about the roadmap", AddNoteOptions{Category: "work"}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if _, err := e.AddNote(ctx, "Second work note, also about the roadmap and staffing", AddNoteOptions{Category: "work"}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NodesByCategory["work"] != 2 {
		t.Errorf("NodesByCategory[work] = %d, want 2", stats.NodesByCategory["work"])
	}
	if stats.EdgeCount > 0 && len(stats.EdgesByType) == 0 {
		t.Error("expected EdgesByType to be populated when edges exist")
	}
}

func TestAddNoteDuplicateRejectedUnlessForced(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	content := "Met with the design team about the new onboarding flow"
	if _, err := e.AddNote(ctx, content, AddNoteOptions{}); err != nil {
		t.Fatalf("first AddNote: %v", err)
	}

	_, err := e.AddNote(ctx, content, AddNoteOptions{})
	if err == nil {
		t.Fatal("expected duplicate error on exact repeat")
	}
	if _, ok := err.(*store.DuplicateError); !ok {
		t.Errorf("expected *store.DuplicateError, got %T: %v", err, err)
	}

	if _, err := e.AddNote(ctx, content, AddNoteOptions{Force: true}); err != nil {
		t.Errorf("forced AddNote should succeed, got: %v", err)
	}
}

func TestUpdateDeleteAndHistory(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	res, err := e.AddNote(ctx, "Initial note content about the release checklist", AddNoteOptions{})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	updated := "Revised note content about the release checklist and sign-off"
	if err := e.UpdateNote(ctx, res.NodeID, &updated, nil); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	history, err := e.History(ctx, res.NodeID, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one prior version, got %d", len(history))
	}

	deleted, err := e.DeleteNote(ctx, res.NodeID)
	if err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if deleted.ID != res.NodeID {
		t.Errorf("expected deleted id %d, got %d", res.NodeID, deleted.ID)
	}
}

func TestSleepComputeRunsAgainstLiveEngine(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.AddNote(ctx, "A note that should survive a maintenance cycle", AddNoteOptions{}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	report, err := e.SleepCompute(ctx, false)
	if err != nil {
		t.Fatalf("SleepCompute: %v", err)
	}
	if report.RunID == "" {
		t.Error("expected a non-empty run id")
	}
	if report.SnapshotPath == "" {
		t.Error("expected a snapshot path")
	}
	if len(report.Steps) == 0 {
		t.Error("expected at least one step result")
	}
}

func TestSleepComputeDryRunLeavesStoreUntouched(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.AddNote(ctx, "A note that should not be mutated by a dry run", AddNoteOptions{}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	before, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	report, err := e.SleepCompute(ctx, true)
	if err != nil {
		t.Fatalf("SleepCompute(dryRun): %v", err)
	}
	if report.SnapshotPath != "" {
		t.Errorf("expected no snapshot on a dry run, got %q", report.SnapshotPath)
	}

	after, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if after.NoteCount != before.NoteCount || after.EdgeCount != before.EdgeCount {
		t.Errorf("dry run mutated store stats: before=%+v after=%+v", before, after)
	}
}
