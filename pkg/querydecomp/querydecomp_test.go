package querydecomp

import (
	"testing"
	"time"
)

func TestIsTemporalDetectsSignal(t *testing.T) {
	if !IsTemporal("when did we discuss the migration?") {
		t.Error("expected temporal signal detected")
	}
	if IsTemporal("what is the migration plan?") {
		t.Error("expected no temporal signal")
	}
}

func TestDecomposeBeforeDirection(t *testing.T) {
	d := Decompose("what did we decide before the outage review")
	if !d.IsTemporal {
		t.Fatal("expected temporal")
	}
	if d.Direction != DirectionBefore {
		t.Errorf("direction = %v, want before", d.Direction)
	}
	if d.ContentQuery == "" {
		t.Error("expected non-empty content query")
	}
}

func TestDecomposeNonTemporalPassthrough(t *testing.T) {
	d := Decompose("docker networking setup")
	if d.IsTemporal {
		t.Error("expected non-temporal")
	}
	if d.ContentQuery != "docker networking setup" {
		t.Errorf("content = %q, want unchanged", d.ContentQuery)
	}
}

func TestDecomposeFallsBackWhenTooShort(t *testing.T) {
	d := Decompose("when did it?")
	if d.ContentQuery != "when did it?" {
		t.Errorf("content = %q, want fallback to original", d.ContentQuery)
	}
}

func TestOrderScoreBeforeAfter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.AddDate(0, 0, 10)}
	if s := OrderScore(times[0], DirectionBefore, times); s != 1.0 {
		t.Errorf("earliest note before-score = %v, want 1.0", s)
	}
	if s := OrderScore(times[1], DirectionAfter, times); s != 1.0 {
		t.Errorf("latest note after-score = %v, want 1.0", s)
	}
}

func TestOrderScoreNeutralForOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.AddDate(0, 0, 10)}
	if s := OrderScore(times[0], DirectionOrder, times); s != 0.5 {
		t.Errorf("order direction score = %v, want 0.5", s)
	}
}
