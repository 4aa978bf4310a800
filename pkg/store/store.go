// Package store implements the persistent typed store described by the
// engine's data model: notes, edges, entities, note-entity links, note
// versions, edge history and search logs, backed by a single-writer SQLite
// database opened in WAL mode.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hippomem/hippomem/pkg/memlog"
)

// Config configures how the store opens its backing database.
type Config struct {
	Path string
	Log  memlog.Logger
}

// Store is the single-writer, many-reader persistent store.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex // serializes writers; readers may run concurrently
	log memlog.Logger
}

// Open opens (creating if necessary) the SQLite-backed store at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, wrapError("Open", fmt.Errorf("%w: empty path", ErrInvalidConfig))
	}
	log := cfg.Log
	if log == nil {
		log = memlog.Nop()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000&_pragma=foreign_keys(1)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("Open", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	s := &Store{db: db, log: log}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("store opened", "path", cfg.Path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return wrapError("Close", err)
}

func (s *Store) closed() bool {
	return s.db == nil
}

// ExecContext runs a raw write statement under the store's write lock,
// letting ancillary packages (searchlog) persist into the same database
// without exposing the underlying *sql.DB.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return nil, wrapError("ExecContext", ErrStoreClosed)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	return res, wrapError("ExecContext", err)
}

// QueryContext runs a raw read query, letting ancillary packages
// (searchlog) read from the same database without exposing the
// underlying *sql.DB.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("QueryContext", ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	return rows, wrapError("QueryContext", err)
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			created_at TIMESTAMP NOT NULL,
			last_accessed TIMESTAMP NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			importance TEXT NOT NULL DEFAULT 'normal',
			embedding BLOB,
			emotional_tone TEXT,
			emotional_intensity REAL,
			emotional_reflection TEXT,
			event_start TIMESTAMP,
			event_end TIMESTAMP,
			temporal_expressions TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_category ON nodes(category)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_event_start ON nodes(event_start)`,
		`CREATE TABLE IF NOT EXISTS edges (
			source_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			target_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			weight REAL NOT NULL,
			type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (source_id, target_id, type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL COLLATE NOCASE UNIQUE,
			type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS node_entities (
			node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			PRIMARY KEY (node_id, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_entities_entity ON node_entities(entity_id)`,
		`CREATE TABLE IF NOT EXISTS note_versions (
			note_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			importance TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (note_id, version_number)
		)`,
		`CREATE TABLE IF NOT EXISTS edge_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			old_type TEXT NOT NULL,
			new_type TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP NOT NULL,
			query TEXT NOT NULL,
			query_cleaned TEXT NOT NULL,
			is_temporal INTEGER NOT NULL,
			temporal_direction TEXT NOT NULL,
			limit_requested INTEGER NOT NULL,
			category_filter TEXT,
			time_after TIMESTAMP,
			time_before TIMESTAMP,
			entity_type_filter TEXT,
			detail_mode TEXT NOT NULL,
			results_count INTEGER NOT NULL,
			total_activated INTEGER NOT NULL,
			top1_score REAL,
			top1_node_id INTEGER,
			top5_scores TEXT,
			latency_total_ms REAL NOT NULL,
			latency_embedding_ms REAL NOT NULL,
			latency_ann_ms REAL NOT NULL,
			latency_spreading_ms REAL NOT NULL,
			latency_bm25_ms REAL NOT NULL,
			latency_temporal_ms REAL NOT NULL,
			latency_rerank_ms REAL NOT NULL,
			latency_filters_ms REAL NOT NULL,
			blend_alpha REAL NOT NULL,
			blend_beta REAL NOT NULL,
			blend_gamma REAL NOT NULL,
			blend_delta REAL NOT NULL,
			bm25_matches INTEGER NOT NULL,
			temporal_matches INTEGER NOT NULL,
			rerank_enabled INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_logs_timestamp ON search_logs(timestamp)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapError("createTables", fmt.Errorf("%s: %w", stmt, err))
		}
	}
	return nil
}
