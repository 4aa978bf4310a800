package ann

import "testing"

func TestSearchFindsExactSelf(t *testing.T) {
	idx := New()
	idx.Build(map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0.9, 0.1, 0},
	})

	matches := idx.Search([]float32{1, 0, 0}, 1, 0)
	if len(matches) != 1 || matches[0].NodeID != 1 {
		t.Fatalf("expected self match, got %+v", matches)
	}
	if matches[0].Similarity < 0.999 {
		t.Errorf("similarity = %v, want ~1", matches[0].Similarity)
	}
}

func TestSearchOrdering(t *testing.T) {
	idx := New()
	idx.Build(map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0.9, 0.1, 0},
	})
	matches := idx.Search([]float32{1, 0, 0}, 3, 0)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Fatalf("results not sorted descending: %+v", matches)
		}
	}
}

func TestAddMakesVectorImmediatelySearchable(t *testing.T) {
	idx := New()
	idx.Add(42, []float32{1, 1, 1})
	matches := idx.Search([]float32{1, 1, 1}, 1, 0)
	if len(matches) != 1 || matches[0].NodeID != 42 {
		t.Fatalf("expected node 42, got %+v", matches)
	}
}

func TestRemove(t *testing.T) {
	idx := New()
	idx.Add(1, []float32{1, 0})
	idx.Remove(1)
	if idx.Len() != 0 {
		t.Fatalf("Len = %d after remove, want 0", idx.Len())
	}
}
