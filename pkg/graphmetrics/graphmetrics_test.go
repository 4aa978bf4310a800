package graphmetrics

import "testing"

func TestPageRankNormalizedToOne(t *testing.T) {
	m := New()
	m.Compute([]WeightedEdge{
		{Source: 1, Target: 2, Weight: 1},
		{Source: 2, Target: 1, Weight: 1},
		{Source: 3, Target: 1, Weight: 1},
	}, []int64{1, 2, 3})

	max := 0.0
	for _, id := range []int64{1, 2, 3} {
		if pr := m.GetPageRank(id); pr > max {
			max = pr
		}
	}
	if max < 0.999 {
		t.Errorf("top pagerank score = %v, want ~1.0", max)
	}
}

func TestPageRankNoEdgesUniform(t *testing.T) {
	m := New()
	m.Compute(nil, []int64{1, 2, 3})
	for _, id := range []int64{1, 2, 3} {
		if pr := m.GetPageRank(id); pr < 0.999 {
			t.Errorf("node %d pagerank = %v, want ~1.0 (uniform normalized)", id, pr)
		}
	}
}

func TestIsolatedNodesGetCommunityMinusOne(t *testing.T) {
	m := New()
	m.Compute([]WeightedEdge{
		{Source: 1, Target: 2, Weight: 1},
	}, []int64{1, 2, 3})

	if c := m.GetCommunity(3); c != -1 {
		t.Errorf("isolated node community = %d, want -1", c)
	}
}

func TestSmallComponentsSkipCommunityDetection(t *testing.T) {
	m := New()
	// Only 3 connected nodes — at or below the >4 threshold, so no
	// community detection should run at all.
	m.Compute([]WeightedEdge{
		{Source: 1, Target: 2, Weight: 1},
		{Source: 2, Target: 3, Weight: 1},
	}, []int64{1, 2, 3})

	for _, id := range []int64{1, 2, 3} {
		if c := m.GetCommunity(id); c != -1 {
			t.Errorf("node %d community = %d, want -1 (component too small)", id, c)
		}
	}
}

func TestPageRankBoostMonotone(t *testing.T) {
	m := New()
	m.Compute([]WeightedEdge{
		{Source: 2, Target: 1, Weight: 1},
		{Source: 3, Target: 1, Weight: 1},
	}, []int64{1, 2, 3})

	if m.GetPageRankBoost(1, 0.1) <= m.GetPageRankBoost(2, 0.1) {
		t.Errorf("hub node should have a larger boost")
	}
}
