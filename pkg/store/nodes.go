package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hippomem/hippomem/internal/encoding"
)

// CreateNode inserts a new note and returns its assigned id.
func (s *Store) CreateNode(ctx context.Context, n *Note) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return 0, wrapError("CreateNode", ErrStoreClosed)
	}
	if n.Content == "" {
		return 0, wrapError("CreateNode", fmt.Errorf("%w: empty content", ErrInvalidNote))
	}
	if n.Importance == "" {
		n.Importance = ImportanceNormal
	}
	now := n.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	lastAccessed := n.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = now
	}

	var embBytes []byte
	var err error
	if n.Embedding != nil {
		embBytes, err = encoding.EncodeVector(n.Embedding)
		if err != nil {
			return 0, wrapError("CreateNode", err)
		}
	}

	var exprJSON string
	if len(n.TemporalExpressions) > 0 {
		b, err := json.Marshal(n.TemporalExpressions)
		if err != nil {
			return 0, wrapError("CreateNode", err)
		}
		exprJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO nodes
		(content, category, created_at, last_accessed, access_count, importance,
		 embedding, emotional_tone, emotional_intensity, emotional_reflection,
		 event_start, event_end, temporal_expressions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Content, defaultCategory(n.Category), now, lastAccessed, n.AccessCount, string(n.Importance),
		embBytes, n.EmotionalTone, n.EmotionalIntensity, n.EmotionalReflection,
		nullableTime(n.EventStart), nullableTime(n.EventEnd), exprJSON)
	if err != nil {
		return 0, wrapError("CreateNode", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapError("CreateNode", err)
	}
	n.ID = id
	n.CreatedAt = now
	n.LastAccessed = lastAccessed
	return id, nil
}

func defaultCategory(c string) string {
	if c == "" {
		return "general"
	}
	return c
}

// GetNode retrieves a note by id.
func (s *Store) GetNode(ctx context.Context, id int64) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetNode", ErrStoreClosed)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, content, category, created_at, last_accessed,
		access_count, importance, embedding, emotional_tone, emotional_intensity,
		emotional_reflection, event_start, event_end, temporal_expressions
		FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapError("GetNode", ErrNotFound)
	}
	if err != nil {
		return nil, wrapError("GetNode", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Note, error) {
	var n Note
	var embBytes []byte
	var tone, reflection sql.NullString
	var intensity sql.NullFloat64
	var eventStart, eventEnd sql.NullTime
	var exprJSON sql.NullString
	var importance string

	err := row.Scan(&n.ID, &n.Content, &n.Category, &n.CreatedAt, &n.LastAccessed,
		&n.AccessCount, &importance, &embBytes, &tone, &intensity, &reflection,
		&eventStart, &eventEnd, &exprJSON)
	if err != nil {
		return nil, err
	}
	n.Importance = Importance(importance)
	if tone.Valid {
		n.EmotionalTone = tone.String
	}
	if intensity.Valid {
		n.EmotionalIntensity = intensity.Float64
	}
	if reflection.Valid {
		n.EmotionalReflection = reflection.String
	}
	if eventStart.Valid {
		t := eventStart.Time
		n.EventStart = &t
	}
	if eventEnd.Valid {
		t := eventEnd.Time
		n.EventEnd = &t
	}
	if len(embBytes) > 0 {
		vec, err := encoding.DecodeVector(embBytes)
		if err == nil {
			n.Embedding = vec
		}
	}
	if exprJSON.Valid && exprJSON.String != "" {
		var exprs []TemporalExpression
		if err := json.Unmarshal([]byte(exprJSON.String), &exprs); err == nil {
			n.TemporalExpressions = exprs
		}
	}
	return &n, nil
}

// UpdateNote applies a content/category change, snapshotting the prior
// state into note_versions first (invariant 3).
func (s *Store) UpdateNote(ctx context.Context, id int64, content, category *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("UpdateNote", ErrStoreClosed)
	}

	row := s.db.QueryRowContext(ctx, `SELECT content, category, importance FROM nodes WHERE id = ?`, id)
	var curContent, curCategory, curImportance string
	if err := row.Scan(&curContent, &curCategory, &curImportance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wrapError("UpdateNote", ErrNotFound)
		}
		return wrapError("UpdateNote", err)
	}

	if err := s.saveNoteVersionLocked(ctx, id, curContent, curCategory, Importance(curImportance)); err != nil {
		return wrapError("UpdateNote", err)
	}

	newContent := curContent
	if content != nil {
		newContent = *content
	}
	newCategory := curCategory
	if category != nil {
		newCategory = *category
	}
	_, err := s.db.ExecContext(ctx, `UPDATE nodes SET content = ?, category = ? WHERE id = ?`,
		newContent, newCategory, id)
	if err != nil {
		return wrapError("UpdateNote", err)
	}
	return nil
}

// DeletedNote summarizes what was removed by DeleteNode.
type DeletedNote struct {
	ID              int64
	EdgesRemoved    int
	EntityLinksLost int
}

// DeleteNode removes a note; foreign keys cascade-delete its edges and
// node_entities rows (invariant 1/6).
func (s *Store) DeleteNode(ctx context.Context, id int64) (*DeletedNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return nil, wrapError("DeleteNode", ErrStoreClosed)
	}

	var edgeCount, linkCount int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE source_id = ? OR target_id = ?`, id, id).Scan(&edgeCount)
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_entities WHERE node_id = ?`, id).Scan(&linkCount)

	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError("DeleteNode", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapError("DeleteNode", err)
	}
	if n == 0 {
		return nil, wrapError("DeleteNode", ErrNotFound)
	}
	return &DeletedNote{ID: id, EdgesRemoved: edgeCount, EntityLinksLost: linkCount}, nil
}

// TouchNode updates last_accessed and increments access_count.
func (s *Store) TouchNode(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("TouchNode", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE nodes SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`, at, id)
	return wrapError("TouchNode", err)
}

// TouchNodes batches access-tracking for a set of ids into one write-lock
// acquisition (§4.11 stage 13).
func (s *Store) TouchNodes(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("TouchNodes", ErrStoreClosed)
	}
	stmt, err := s.db.PrepareContext(ctx, `UPDATE nodes SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`)
	if err != nil {
		return wrapError("TouchNodes", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, at, id); err != nil {
			return wrapError("TouchNodes", err)
		}
	}
	return nil
}

// SetImportance updates a note's importance level.
func (s *Store) SetImportance(ctx context.Context, id int64, level Importance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("SetImportance", ErrStoreClosed)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET importance = ? WHERE id = ?`, string(level), id)
	if err != nil {
		return wrapError("SetImportance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapError("SetImportance", err)
	}
	if n == 0 {
		return wrapError("SetImportance", ErrNotFound)
	}
	return nil
}

// GetAllNodes returns every note, used by index rebuilds at startup.
func (s *Store) GetAllNodes(ctx context.Context) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetAllNodes", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, category, created_at, last_accessed,
		access_count, importance, embedding, emotional_tone, emotional_intensity,
		emotional_reflection, event_start, event_end, temporal_expressions
		FROM nodes ORDER BY id`)
	if err != nil {
		return nil, wrapError("GetAllNodes", err)
	}
	defer rows.Close()

	var out []*Note
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, wrapError("GetAllNodes", err)
		}
		out = append(out, n)
	}
	return out, wrapError("GetAllNodes", rows.Err())
}

// EventRange pairs a note id with its resolved event interval.
type EventRange struct {
	NodeID int64
	Start  time.Time
	End    time.Time
}

// GetNodesWithEventRange returns every note that has a resolved
// event_start/event_end, for temporal-overlap scoring (§4.11 stage 8).
func (s *Store) GetNodesWithEventRange(ctx context.Context) ([]EventRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetNodesWithEventRange", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, event_start, event_end FROM nodes
		WHERE event_start IS NOT NULL AND event_end IS NOT NULL`)
	if err != nil {
		return nil, wrapError("GetNodesWithEventRange", err)
	}
	defer rows.Close()

	var out []EventRange
	for rows.Next() {
		var r EventRange
		if err := rows.Scan(&r.NodeID, &r.Start, &r.End); err != nil {
			return nil, wrapError("GetNodesWithEventRange", err)
		}
		out = append(out, r)
	}
	return out, wrapError("GetNodesWithEventRange", rows.Err())
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
