package searchlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hippomem/hippomem/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFinishPersistsEntry(t *testing.T) {
	s := newTestStore(t)
	logger := New(s)

	timer := NewTimer()
	timer.Mark(PhaseEmbedding)
	timer.Mark(PhaseANN)

	err := logger.Finish(context.Background(), Entry{
		Query:          "when did we ship it",
		QueryCleaned:   "ship it",
		IsTemporal:     true,
		TemporalDirection: "when",
		Params:         Params{Limit: 5, DetailMode: "full"},
		Results:        []ScoredResult{{NodeID: 1, Score: 0.9}},
		TotalActivated: 3,
		Timer:          timer,
		Signals:        Signals{Alpha: 0.6, Beta: 0.4},
	})
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
}

func TestFinishWithNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	if err := logger.Finish(context.Background(), Entry{}); err != nil {
		t.Errorf("nil logger Finish() error = %v, want nil", err)
	}
}

func TestTimerMarksPositiveDurations(t *testing.T) {
	timer := NewTimer()
	timer.Mark(PhaseEmbedding)
	if timer.marks[PhaseEmbedding] < 0 {
		t.Error("expected non-negative mark duration")
	}
	if timer.TotalMS() < 0 {
		t.Error("expected non-negative total duration")
	}
}

func TestStatsSummarizesLoggedSearches(t *testing.T) {
	s := newTestStore(t)
	logger := New(s)
	ctx := context.Background()

	for i, q := range []string{"first query", "second query"} {
		timer := NewTimer()
		timer.Mark(PhaseEmbedding)
		results := []ScoredResult{{NodeID: int64(i + 1), Score: 0.8}}
		if err := logger.Finish(ctx, Entry{
			Query:          q,
			Params:         Params{Limit: 5},
			Results:        results,
			TotalActivated: 2,
			Timer:          timer,
			Signals:        Signals{Alpha: 0.6},
		}); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	}
	if err := logger.Finish(ctx, Entry{Query: "no hits", Params: Params{Limit: 5}, Timer: NewTimer()}); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	stats, err := logger.Stats(ctx, 24)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalSearchesWindow != 3 {
		t.Errorf("TotalSearchesWindow = %d, want 3", stats.TotalSearchesWindow)
	}
	if stats.ZeroResultsWindow != 1 {
		t.Errorf("ZeroResultsWindow = %d, want 1", stats.ZeroResultsWindow)
	}
	if len(stats.RecentZeroResults) != 1 || stats.RecentZeroResults[0].Query != "no hits" {
		t.Errorf("RecentZeroResults = %+v, want one entry for %q", stats.RecentZeroResults, "no hits")
	}
	if stats.AvgTop1Score <= 0 {
		t.Errorf("AvgTop1Score = %v, want > 0", stats.AvgTop1Score)
	}
}
