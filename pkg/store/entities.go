package store

import (
	"context"
	"database/sql"
)

// GetOrCreateEntity returns the id of the entity named name (case
// insensitive), creating it with the given type if it doesn't exist yet.
func (s *Store) GetOrCreateEntity(ctx context.Context, name string, entityType EntityType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return 0, wrapError("GetOrCreateEntity", ErrStoreClosed)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ? COLLATE NOCASE`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, wrapError("GetOrCreateEntity", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO entities (name, type) VALUES (?, ?)`, name, string(entityType))
	if err != nil {
		return 0, wrapError("GetOrCreateEntity", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, wrapError("GetOrCreateEntity", err)
	}
	return id, nil
}

// LinkNodeToEntity creates the many-to-many link, a no-op if it already exists.
func (s *Store) LinkNodeToEntity(ctx context.Context, nodeID, entityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("LinkNodeToEntity", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO node_entities (node_id, entity_id) VALUES (?, ?)`, nodeID, entityID)
	return wrapError("LinkNodeToEntity", err)
}

// GetNodesByEntity returns every note id linked to entityID.
func (s *Store) GetNodesByEntity(ctx context.Context, entityID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetNodesByEntity", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT node_id FROM node_entities WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, wrapError("GetNodesByEntity", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapError("GetNodesByEntity", err)
		}
		out = append(out, id)
	}
	return out, wrapError("GetNodesByEntity", rows.Err())
}

// GetEntityCountsBatch returns, for every node id, how many distinct
// entities it is linked to — the input to the hub penalty (§4.11 stage 10).
func (s *Store) GetEntityCountsBatch(ctx context.Context) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetEntityCountsBatch", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT node_id, COUNT(*) FROM node_entities GROUP BY node_id`)
	if err != nil {
		return nil, wrapError("GetEntityCountsBatch", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var c int
		if err := rows.Scan(&id, &c); err != nil {
			return nil, wrapError("GetEntityCountsBatch", err)
		}
		out[id] = c
	}
	return out, wrapError("GetEntityCountsBatch", rows.Err())
}

// GetEntitiesForNode returns every entity linked to nodeID.
func (s *Store) GetEntitiesForNode(ctx context.Context, nodeID int64) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetEntitiesForNode", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT e.id, e.name, e.type FROM entities e
		JOIN node_entities ne ON ne.entity_id = e.id WHERE ne.node_id = ?`, nodeID)
	if err != nil {
		return nil, wrapError("GetEntitiesForNode", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		var e Entity
		var t string
		if err := rows.Scan(&e.ID, &e.Name, &t); err != nil {
			return nil, wrapError("GetEntitiesForNode", err)
		}
		e.Type = EntityType(t)
		out = append(out, &e)
	}
	return out, wrapError("GetEntitiesForNode", rows.Err())
}

// PruneOrphanEntities deletes entities with no remaining node_entities
// link (§4.3 entity lifecycle).
func (s *Store) PruneOrphanEntities(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return 0, wrapError("PruneOrphanEntities", ErrStoreClosed)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id NOT IN (SELECT DISTINCT entity_id FROM node_entities)`)
	if err != nil {
		return 0, wrapError("PruneOrphanEntities", err)
	}
	n, err := res.RowsAffected()
	return n, wrapError("PruneOrphanEntities", err)
}
