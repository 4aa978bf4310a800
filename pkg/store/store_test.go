package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateNode(ctx, &Note{Content: "hello world", Embedding: []float32{0.1, 0.2, 0.3}})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	n, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.Content != "hello world" {
		t.Errorf("content = %q", n.Content)
	}
	if n.Category != "general" {
		t.Errorf("default category = %q", n.Category)
	}
	if len(n.Embedding) != 3 {
		t.Errorf("embedding round-trip: got %v", n.Embedding)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetNode(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNoteVersioning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.CreateNode(ctx, &Note{Content: "v1"})
	for i := 2; i <= 8; i++ {
		c := "v" + string(rune('0'+i))
		if err := s.UpdateNote(ctx, id, &c, nil); err != nil {
			t.Fatalf("UpdateNote: %v", err)
		}
	}

	hist, err := s.GetNoteHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("GetNoteHistory: %v", err)
	}
	if len(hist) > maxVersionsPerNote {
		t.Errorf("history kept %d versions, want <= %d", len(hist), maxVersionsPerNote)
	}
	if hist[0].VersionNumber < hist[len(hist)-1].VersionNumber {
		t.Errorf("history not newest-first")
	}
}

func TestRestoreNoteVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.CreateNode(ctx, &Note{Content: "original"})
	updated := "changed"
	if err := s.UpdateNote(ctx, id, &updated, nil); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	ok, err := s.RestoreNoteVersion(ctx, id, 1)
	if err != nil || !ok {
		t.Fatalf("RestoreNoteVersion: ok=%v err=%v", ok, err)
	}
	n, _ := s.GetNode(ctx, id)
	if n.Content != "original" {
		t.Errorf("content after restore = %q", n.Content)
	}

	hist, _ := s.GetNoteHistory(ctx, id, 0)
	found := false
	for _, v := range hist {
		if v.Content == "changed" {
			found = true
		}
	}
	if !found {
		t.Errorf("restore did not snapshot the pre-restore state")
	}
}

func TestDeleteNodeCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateNode(ctx, &Note{Content: "a"})
	b, _ := s.CreateNode(ctx, &Note{Content: "b"})
	if err := s.CreateMirroredEdge(ctx, &Edge{SourceID: a, TargetID: b, Weight: 0.5, Type: EdgeSemantic}); err != nil {
		t.Fatalf("CreateMirroredEdge: %v", err)
	}
	eid, err := s.GetOrCreateEntity(ctx, "Docker", EntityTech)
	if err != nil {
		t.Fatalf("GetOrCreateEntity: %v", err)
	}
	if err := s.LinkNodeToEntity(ctx, a, eid); err != nil {
		t.Fatalf("LinkNodeToEntity: %v", err)
	}

	if _, err := s.DeleteNode(ctx, a); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	conn, err := s.GetConnectedNodes(ctx, b)
	if err != nil {
		t.Fatalf("GetConnectedNodes: %v", err)
	}
	for _, c := range conn {
		if c.NodeID == a {
			t.Errorf("edge to deleted node %d survived", a)
		}
	}

	nodes, err := s.GetNodesByEntity(ctx, eid)
	if err != nil {
		t.Fatalf("GetNodesByEntity: %v", err)
	}
	for _, id := range nodes {
		if id == a {
			t.Errorf("node_entities link to deleted node %d survived", a)
		}
	}
}

func TestCreateEdgeUpsertsMaxWeight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateNode(ctx, &Note{Content: "a"})
	b, _ := s.CreateNode(ctx, &Note{Content: "b"})

	if err := s.CreateEdge(ctx, &Edge{SourceID: a, TargetID: b, Weight: 0.3, Type: EdgeSemantic}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if err := s.CreateEdge(ctx, &Edge{SourceID: a, TargetID: b, Weight: 0.8, Type: EdgeSemantic}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	edges, err := s.GetAllEdges(ctx)
	if err != nil {
		t.Fatalf("GetAllEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].Weight != 0.8 {
		t.Fatalf("expected one edge at weight 0.8, got %+v", edges)
	}

	if err := s.CreateEdge(ctx, &Edge{SourceID: a, TargetID: b, Weight: 0.1, Type: EdgeSemantic}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	edges, _ = s.GetAllEdges(ctx)
	if edges[0].Weight != 0.8 {
		t.Fatalf("weight decreased on re-insert: got %v", edges[0].Weight)
	}
}

func TestTouchNodeIncrementsAccessCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, _ := s.CreateNode(ctx, &Note{Content: "a"})

	if err := s.TouchNode(ctx, id, time.Now().UTC()); err != nil {
		t.Fatalf("TouchNode: %v", err)
	}
	n, _ := s.GetNode(ctx, id)
	if n.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", n.AccessCount)
	}
}

func TestGetStatsGroupsByCategoryAndType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateNode(ctx, &Note{Content: "a", Category: "work"})
	b, _ := s.CreateNode(ctx, &Note{Content: "b", Category: "work"})
	_, _ = s.CreateNode(ctx, &Note{Content: "c", Category: "personal"})

	if err := s.CreateEdge(ctx, &Edge{SourceID: a, TargetID: b, Weight: 0.5, Type: EdgeSemantic}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.NodesByCategory["work"] != 2 {
		t.Errorf("NodesByCategory[work] = %d, want 2", stats.NodesByCategory["work"])
	}
	if stats.NodesByCategory["personal"] != 1 {
		t.Errorf("NodesByCategory[personal] = %d, want 1", stats.NodesByCategory["personal"])
	}
	if stats.EdgesByType[EdgeSemantic] != 1 {
		t.Errorf("EdgesByType[semantic] = %d, want 1", stats.EdgesByType[EdgeSemantic])
	}
}
