package bm25

import "testing"

func TestSearchReturnsOnlyPositiveScores(t *testing.T) {
	idx := New(0, 0)
	idx.Build([]Document{
		{ID: 1, Content: "the quick brown fox jumps over the lazy dog"},
		{ID: 2, Content: "docker containers and kubernetes orchestration"},
		{ID: 3, Content: "fox hunting season opens in autumn"},
	})

	scores := idx.Search("fox", 10)
	if _, ok := scores[2]; ok {
		t.Errorf("unrelated document scored: %+v", scores)
	}
	if _, ok := scores[1]; !ok {
		t.Errorf("expected doc 1 to score for 'fox'")
	}
	if _, ok := scores[3]; !ok {
		t.Errorf("expected doc 3 to score for 'fox'")
	}
	for id, s := range scores {
		if s <= 0 {
			t.Errorf("doc %d has non-positive score %v", id, s)
		}
	}
}

func TestAddDocumentIncremental(t *testing.T) {
	idx := New(0, 0)
	idx.Build([]Document{{ID: 1, Content: "alpha beta"}})
	idx.AddDocument(2, "alpha gamma")

	scores := idx.Search("alpha", 10)
	if len(scores) != 2 {
		t.Fatalf("expected both docs to score, got %+v", scores)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := New(0, 0)
	idx.Build([]Document{{ID: 1, Content: "alpha beta"}})
	scores := idx.Search("!!!", 10)
	if len(scores) != 0 {
		t.Errorf("expected no scores for punctuation-only query, got %+v", scores)
	}
}

func TestSearchBeforeBuildReturnsEmpty(t *testing.T) {
	idx := New(0, 0)
	if scores := idx.Search("anything", 10); len(scores) != 0 {
		t.Errorf("expected empty before Build, got %+v", scores)
	}
}
