// Package searchlog records every search's parameters, result stats, and
// per-stage latency breakdown to the store's search_logs table, for
// offline search-quality monitoring.
package searchlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Phase names marked during a search, matching the retrieval pipeline's
// stages.
const (
	PhaseEmbedding  = "embedding"
	PhaseANN        = "ann"
	PhaseSpreading  = "spreading"
	PhaseBM25       = "bm25"
	PhaseTemporal   = "temporal"
	PhaseRerank     = "rerank"
	PhaseFilters    = "filters"
)

// DB is the minimal interface searchlog needs from *sql.DB, so it can be
// exercised without the full store package.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Timer tracks phase-by-phase latency for one search call.
type Timer struct {
	start      time.Time
	phaseStart time.Time
	marks      map[string]float64
}

// NewTimer begins timing a search.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, phaseStart: now, marks: make(map[string]float64)}
}

// Mark records the elapsed milliseconds since the previous mark (or start)
// under phase.
func (t *Timer) Mark(phase string) {
	now := time.Now()
	t.marks[phase] = float64(now.Sub(t.phaseStart).Microseconds()) / 1000.0
	t.phaseStart = now
}

// TotalMS returns elapsed milliseconds since NewTimer.
func (t *Timer) TotalMS() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}

// Params records the request-side inputs to a search.
type Params struct {
	Limit            int
	CategoryFilter   string
	TimeAfter        *time.Time
	TimeBefore       *time.Time
	EntityTypeFilter string
	DetailMode       string
}

// Signals records the fusion weights and per-signal match counts.
type Signals struct {
	Alpha           float64
	Beta            float64
	Gamma           float64
	Delta           float64
	BM25Matches     int
	TemporalMatches int
	RerankEnabled   bool
}

// ScoredResult is the minimal per-result shape searchlog needs.
type ScoredResult struct {
	NodeID int64
	Score  float64
}

// Entry is everything Finish needs to persist one completed search.
type Entry struct {
	Query             string
	QueryCleaned       string
	IsTemporal         bool
	TemporalDirection  string
	Params             Params
	Results            []ScoredResult
	TotalActivated     int
	Timer              *Timer
	Signals            Signals
}

// Logger writes completed search entries to the store.
type Logger struct {
	db DB
}

// New builds a Logger over db (typically the store's underlying *sql.DB
// via a thin adapter, or the store package itself if it implements DB).
func New(db DB) *Logger {
	return &Logger{db: db}
}

// Finish persists one completed search. Errors are non-fatal to the
// caller's search response — logging failures never fail a search.
func (l *Logger) Finish(ctx context.Context, e Entry) error {
	if l == nil || l.db == nil {
		return nil
	}

	var top1Score sql.NullFloat64
	var top1NodeID sql.NullInt64
	top5 := make([]float64, 0, 5)
	for i, r := range e.Results {
		if i == 0 {
			top1Score = sql.NullFloat64{Float64: r.Score, Valid: true}
			top1NodeID = sql.NullInt64{Int64: r.NodeID, Valid: true}
		}
		if i < 5 {
			top5 = append(top5, r.Score)
		}
	}
	top5JSON, _ := json.Marshal(top5)

	totalMS := 0.0
	marks := map[string]float64{}
	if e.Timer != nil {
		totalMS = e.Timer.TotalMS()
		marks = e.Timer.marks
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO search_logs (
		timestamp, query, query_cleaned, is_temporal, temporal_direction,
		limit_requested, category_filter, time_after, time_before, entity_type_filter, detail_mode,
		results_count, total_activated, top1_score, top1_node_id, top5_scores,
		latency_total_ms, latency_embedding_ms, latency_ann_ms, latency_spreading_ms,
		latency_bm25_ms, latency_temporal_ms, latency_rerank_ms, latency_filters_ms,
		blend_alpha, blend_beta, blend_gamma, blend_delta, bm25_matches, temporal_matches, rerank_enabled
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), e.Query, e.QueryCleaned, boolToInt(e.IsTemporal), e.TemporalDirection,
		e.Params.Limit, nullableString(e.Params.CategoryFilter), nullableTimePtr(e.Params.TimeAfter),
		nullableTimePtr(e.Params.TimeBefore), nullableString(e.Params.EntityTypeFilter), e.Params.DetailMode,
		len(e.Results), e.TotalActivated, top1Score, top1NodeID, string(top5JSON),
		totalMS, marks[PhaseEmbedding], marks[PhaseANN], marks[PhaseSpreading],
		marks[PhaseBM25], marks[PhaseTemporal], marks[PhaseRerank], marks[PhaseFilters],
		e.Signals.Alpha, e.Signals.Beta, e.Signals.Gamma, e.Signals.Delta,
		e.Signals.BM25Matches, e.Signals.TemporalMatches, boolToInt(e.Signals.RerankEnabled))
	return err
}

// PhaseLatency is the average per-stage latency over a stats window.
type PhaseLatency struct {
	Embedding float64
	ANN       float64
	Spreading float64
	BM25      float64
	Temporal  float64
	Rerank    float64
}

// ZeroResultQuery is one recent query that returned no results.
type ZeroResultQuery struct {
	Query     string
	Timestamp time.Time
}

// Stats summarizes search_logs over a recent window, mirroring
// get_search_stats's reporting: volume, latency percentiles, average
// result quality, per-phase latency, and recent zero-result queries.
type Stats struct {
	TotalSearchesWindow int
	TotalSearchesAllTime int
	ZeroResultsWindow    int
	LatencyP50           float64
	LatencyP95           float64
	LatencyP99           float64
	LatencyMax           float64
	AvgTop1Score         float64
	AvgResultsCount      float64
	AvgPhaseMS           PhaseLatency
	RecentZeroResults    []ZeroResultQuery
}

// Stats reports search performance over the last `hours` hours.
func (l *Logger) Stats(ctx context.Context, hours int) (Stats, error) {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var out Stats

	if err := l.scanCount(ctx, &out.TotalSearchesWindow, `SELECT COUNT(*) FROM search_logs WHERE timestamp >= ?`, cutoff); err != nil {
		return out, err
	}
	if err := l.scanCount(ctx, &out.TotalSearchesAllTime, `SELECT COUNT(*) FROM search_logs`); err != nil {
		return out, err
	}
	if err := l.scanCount(ctx, &out.ZeroResultsWindow, `SELECT COUNT(*) FROM search_logs WHERE results_count = 0 AND timestamp >= ?`, cutoff); err != nil {
		return out, err
	}

	latencies, err := l.scanLatencies(ctx, cutoff)
	if err != nil {
		return out, err
	}
	if n := len(latencies); n > 0 {
		out.LatencyP50 = latencies[n/2]
		out.LatencyP95 = latencies[int(float64(n)*0.95)]
		out.LatencyP99 = latencies[minInt(int(float64(n)*0.99), n-1)]
		out.LatencyMax = latencies[n-1]
	}

	if err := l.scanAverages(ctx, &out, cutoff); err != nil {
		return out, err
	}

	zeros, err := l.scanZeroResults(ctx)
	if err != nil {
		return out, err
	}
	out.RecentZeroResults = zeros

	return out, nil
}

func (l *Logger) scanCount(ctx context.Context, dst *int, query string, args ...any) error {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(dst); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (l *Logger) scanLatencies(ctx context.Context, cutoff time.Time) ([]float64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT latency_total_ms FROM search_logs WHERE timestamp >= ? ORDER BY latency_total_ms`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (l *Logger) scanAverages(ctx context.Context, out *Stats, cutoff time.Time) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT AVG(top1_score), AVG(results_count),
		       AVG(latency_embedding_ms), AVG(latency_ann_ms), AVG(latency_spreading_ms),
		       AVG(latency_bm25_ms), AVG(latency_temporal_ms), AVG(latency_rerank_ms)
		FROM search_logs WHERE timestamp >= ?`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		var top1, results, emb, ann, spread, bm, temp, rerank sql.NullFloat64
		if err := rows.Scan(&top1, &results, &emb, &ann, &spread, &bm, &temp, &rerank); err != nil {
			return err
		}
		out.AvgTop1Score = top1.Float64
		out.AvgResultsCount = results.Float64
		out.AvgPhaseMS = PhaseLatency{
			Embedding: emb.Float64, ANN: ann.Float64, Spreading: spread.Float64,
			BM25: bm.Float64, Temporal: temp.Float64, Rerank: rerank.Float64,
		}
	}
	return rows.Err()
}

func (l *Logger) scanZeroResults(ctx context.Context) ([]ZeroResultQuery, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT query, timestamp FROM search_logs WHERE results_count = 0 ORDER BY timestamp DESC LIMIT 10`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ZeroResultQuery
	for rows.Next() {
		var q string
		var ts time.Time
		if err := rows.Scan(&q, &ts); err != nil {
			return nil, err
		}
		out = append(out, ZeroResultQuery{Query: q, Timestamp: ts})
	}
	return out, rows.Err()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
