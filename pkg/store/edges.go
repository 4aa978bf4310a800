package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateEdge inserts a directed edge, upserting to the larger weight on a
// conflicting (source, target, type) triple — ingestion only ever raises
// confidence in an existing relation, never lowers it (invariant 5).
func (s *Store) CreateEdge(ctx context.Context, e *Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("CreateEdge", ErrStoreClosed)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO edges (source_id, target_id, weight, type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET
			weight = MAX(weight, excluded.weight)`,
		e.SourceID, e.TargetID, e.Weight, string(e.Type), createdAt)
	return wrapError("CreateEdge", err)
}

// CreateMirroredEdge inserts e and its reverse (invariant 2).
func (s *Store) CreateMirroredEdge(ctx context.Context, e *Edge) error {
	if err := s.CreateEdge(ctx, e); err != nil {
		return err
	}
	mirror := &Edge{SourceID: e.TargetID, TargetID: e.SourceID, Weight: e.Weight, Type: e.Type, CreatedAt: e.CreatedAt}
	return s.CreateEdge(ctx, mirror)
}

// ConnectedNode is one neighbor of a node in the adjacency graph.
type ConnectedNode struct {
	NodeID int64
	Weight float32
	Type   EdgeType
}

// GetConnectedNodes returns every outgoing neighbor of id.
func (s *Store) GetConnectedNodes(ctx context.Context, id int64) ([]ConnectedNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetConnectedNodes", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT target_id, weight, type FROM edges WHERE source_id = ?`, id)
	if err != nil {
		return nil, wrapError("GetConnectedNodes", err)
	}
	defer rows.Close()

	var out []ConnectedNode
	for rows.Next() {
		var c ConnectedNode
		var t string
		if err := rows.Scan(&c.NodeID, &c.Weight, &t); err != nil {
			return nil, wrapError("GetConnectedNodes", err)
		}
		c.Type = EdgeType(t)
		out = append(out, c)
	}
	return out, wrapError("GetConnectedNodes", rows.Err())
}

// GetAllEdges returns every edge, used for adjacency-cache and
// graph-metrics rebuilds.
func (s *Store) GetAllEdges(ctx context.Context) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetAllEdges", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, target_id, weight, type, created_at FROM edges`)
	if err != nil {
		return nil, wrapError("GetAllEdges", err)
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		var e Edge
		var t string
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Weight, &t, &e.CreatedAt); err != nil {
			return nil, wrapError("GetAllEdges", err)
		}
		e.Type = EdgeType(t)
		out = append(out, &e)
	}
	return out, wrapError("GetAllEdges", rows.Err())
}

// SetEdgeWeight updates a single edge's weight, used by the sleep-compute
// decay step.
func (s *Store) SetEdgeWeight(ctx context.Context, sourceID, targetID int64, edgeType EdgeType, weight float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("SetEdgeWeight", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE edges SET weight = ? WHERE source_id = ? AND target_id = ? AND type = ?`,
		weight, sourceID, targetID, string(edgeType))
	return wrapError("SetEdgeWeight", err)
}

// RecordEdgeHistory appends a conflicting-relation entry without touching
// the live edge (§4.13 step 5).
func (s *Store) RecordEdgeHistory(ctx context.Context, h *EdgeHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("RecordEdgeHistory", ErrStoreClosed)
	}
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO edge_history (source_id, target_id, old_type, new_type, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.SourceID, h.TargetID, string(h.OldType), string(h.NewType), h.Kind, createdAt)
	return wrapError("RecordEdgeHistory", err)
}

// EdgeExists reports whether any edge of any type already connects the
// two nodes, used to avoid overwriting during rule-based relation
// extraction (§4.13 step 4).
func (s *Store) EdgeExists(ctx context.Context, sourceID, targetID int64) (bool, EdgeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return false, "", wrapError("EdgeExists", ErrStoreClosed)
	}
	var t string
	err := s.db.QueryRowContext(ctx, `SELECT type FROM edges WHERE source_id = ? AND target_id = ? LIMIT 1`, sourceID, targetID).Scan(&t)
	switch {
	case err == sql.ErrNoRows:
		return false, "", nil
	case err != nil:
		return false, "", wrapError("EdgeExists", err)
	}
	return true, EdgeType(t), nil
}
