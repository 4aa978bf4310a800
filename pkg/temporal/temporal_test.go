package temporal

import (
	"testing"
	"time"
)

func ref() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
}

func TestExtractISODate(t *testing.T) {
	exprs, start, end := Extract("met them on 2026-03-05 for lunch", ref())
	if len(exprs) != 1 {
		t.Fatalf("expected 1 expression, got %v", exprs)
	}
	if start == nil || end == nil {
		t.Fatal("expected resolved interval")
	}
	if start.Month() != 3 || start.Day() != 5 {
		t.Errorf("got start %v, want 2026-03-05", start)
	}
}

func TestExtractYesterday(t *testing.T) {
	_, start, end := Extract("talked to them yesterday about the plan", ref())
	if start == nil || end == nil {
		t.Fatal("expected resolved interval")
	}
	want := ref().AddDate(0, 0, -1)
	if start.Day() != want.Day() {
		t.Errorf("got start day %d, want %d", start.Day(), want.Day())
	}
}

func TestExplicitBeatsRelative(t *testing.T) {
	_, start, _ := Extract("yesterday I noted that on 2026-01-10 we shipped it", ref())
	if start == nil {
		t.Fatal("expected resolved interval")
	}
	if start.Month() != 1 || start.Day() != 10 {
		t.Errorf("explicit date should win, got %v", start)
	}
}

func TestNoExpressionsReturnsNil(t *testing.T) {
	exprs, start, end := Extract("just a plain note with no dates", ref())
	if len(exprs) != 0 || start != nil || end != nil {
		t.Errorf("expected no temporal match, got %v %v %v", exprs, start, end)
	}
}

func TestMonthsAgoRollover(t *testing.T) {
	_, start, _ := Extract("shipped that 3 months ago", ref())
	if start == nil {
		t.Fatal("expected resolved interval")
	}
	if start.Month() != 4 {
		t.Errorf("3 months before July should resolve to April, got %v", start.Month())
	}
}

func TestOverlapFullyContained(t *testing.T) {
	qs := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	qe := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	ns := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ne := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	got := Overlap(qs, qe, ns, ne)
	if got <= 0 || got > 1 {
		t.Errorf("overlap = %v, want in (0,1]", got)
	}
}

func TestOverlapNoIntersection(t *testing.T) {
	qs := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	qe := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	ns := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ne := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	if got := Overlap(qs, qe, ns, ne); got != 0 {
		t.Errorf("overlap = %v, want 0", got)
	}
}

func TestOverlapClampedToOne(t *testing.T) {
	qs := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	qe := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	ns := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ne := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Overlap(qs, qe, ns, ne); got != 1 {
		t.Errorf("overlap = %v, want clamped to 1", got)
	}
}
