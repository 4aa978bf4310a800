package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hippomem/hippomem/pkg/adjacency"
	"github.com/hippomem/hippomem/pkg/ann"
	"github.com/hippomem/hippomem/pkg/bm25"
	"github.com/hippomem/hippomem/pkg/embedding"
	"github.com/hippomem/hippomem/pkg/entity"
	"github.com/hippomem/hippomem/pkg/ingest"
	"github.com/hippomem/hippomem/pkg/store"
)

func newTestRig(t *testing.T) (*Pipeline, *store.Store, *ingest.Pipeline) {
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
	ret := New(s, embedder, annIdx, adj, bm25Idx, nil)
	return ret, s, ing
}

func TestSearchReturnsRelevantNote(t *testing.T) {
	ret, _, ing := newTestRig(t)
	ctx := context.Background()

	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Deployed the new recommendation service to production"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Bought groceries for the week"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	resp, err := ret.Search(ctx, "recommendation service deployment", Options{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if resp.Results[0].Note == nil || resp.Results[0].Note.Content == "" {
		t.Error("expected full detail content by default")
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	ret, _, ing := newTestRig(t)
	ctx := context.Background()

	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Reviewed the architecture proposal", Category: "technical"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if _, err := ing.AddNote(ctx, ingest.Input{Content: "Had coffee with an old friend", Category: "personal"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	resp, err := ret.Search(ctx, "architecture proposal", Options{Limit: 5, CategoryFilter: "personal"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range resp.Results {
		if r.Note.Category != "personal" {
			t.Errorf("expected only personal category, got %q", r.Note.Category)
		}
	}
}

func TestSearchBriefDetailMode(t *testing.T) {
	ret, _, ing := newTestRig(t)
	ctx := context.Background()

	if _, err := ing.AddNote(ctx, ingest.Input{Content: "First line of a longer note.\nSecond line here."}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	resp, err := ret.Search(ctx, "longer note", Options{Limit: 5, DetailMode: "brief"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if resp.Results[0].Note != nil {
		t.Error("expected brief mode to omit full note")
	}
	if resp.Results[0].TotalLines != 2 {
		t.Errorf("TotalLines = %d, want 2", resp.Results[0].TotalLines)
	}
}

func TestSearchEmptyStoreReturnsNoResults(t *testing.T) {
	ret, _, _ := newTestRig(t)
	resp, err := ret.Search(context.Background(), "anything", Options{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results on empty store, got %d", len(resp.Results))
	}
}
