package store

import (
	"context"
	"database/sql"
	"time"
)

// maxVersionsPerNote bounds note_versions per note_id (invariant 7).
const maxVersionsPerNote = 5

// saveNoteVersionLocked must be called with s.mu already held for write.
func (s *Store) saveNoteVersionLocked(ctx context.Context, noteID int64, content, category string, importance Importance) error {
	var maxVersion sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version_number) FROM note_versions WHERE note_id = ?`, noteID).Scan(&maxVersion); err != nil {
		return err
	}
	next := 1
	if maxVersion.Valid {
		next = int(maxVersion.Int64) + 1
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO note_versions
		(note_id, version_number, content, category, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		noteID, next, content, category, string(importance), time.Now().UTC()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM note_versions WHERE note_id = ? AND version_number <= ?`,
		noteID, next-maxVersionsPerNote)
	return err
}

// SaveNoteVersion snapshots the given state as the next version of noteID,
// pruning anything older than the last 5 (invariant 7).
func (s *Store) SaveNoteVersion(ctx context.Context, noteID int64, content, category string, importance Importance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return wrapError("SaveNoteVersion", ErrStoreClosed)
	}
	return wrapError("SaveNoteVersion", s.saveNoteVersionLocked(ctx, noteID, content, category, importance))
}

// GetNoteHistory returns up to limit versions of noteID, newest first.
func (s *Store) GetNoteHistory(ctx context.Context, noteID int64, limit int) ([]*NoteVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return nil, wrapError("GetNoteHistory", ErrStoreClosed)
	}
	if limit <= 0 {
		limit = maxVersionsPerNote
	}
	rows, err := s.db.QueryContext(ctx, `SELECT note_id, version_number, content, category, importance, created_at
		FROM note_versions WHERE note_id = ? ORDER BY version_number DESC LIMIT ?`, noteID, limit)
	if err != nil {
		return nil, wrapError("GetNoteHistory", err)
	}
	defer rows.Close()

	var out []*NoteVersion
	for rows.Next() {
		var v NoteVersion
		var importance string
		if err := rows.Scan(&v.NoteID, &v.VersionNumber, &v.Content, &v.Category, &importance, &v.CreatedAt); err != nil {
			return nil, wrapError("GetNoteHistory", err)
		}
		v.Importance = Importance(importance)
		out = append(out, &v)
	}
	return out, wrapError("GetNoteHistory", rows.Err())
}

// RestoreNoteVersion first snapshots the note's current state as a new
// version (so the restore itself is recorded), then overwrites the note
// row with the requested version's content/category/importance.
func (s *Store) RestoreNoteVersion(ctx context.Context, noteID int64, versionNumber int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return false, wrapError("RestoreNoteVersion", ErrStoreClosed)
	}

	var v NoteVersion
	var importance string
	err := s.db.QueryRowContext(ctx, `SELECT content, category, importance FROM note_versions
		WHERE note_id = ? AND version_number = ?`, noteID, versionNumber).Scan(&v.Content, &v.Category, &importance)
	if err == sql.ErrNoRows {
		return false, wrapError("RestoreNoteVersion", ErrInvalidVersion)
	}
	if err != nil {
		return false, wrapError("RestoreNoteVersion", err)
	}
	v.Importance = Importance(importance)

	var curContent, curCategory, curImportance string
	if err := s.db.QueryRowContext(ctx, `SELECT content, category, importance FROM nodes WHERE id = ?`, noteID).
		Scan(&curContent, &curCategory, &curImportance); err != nil {
		if err == sql.ErrNoRows {
			return false, wrapError("RestoreNoteVersion", ErrNotFound)
		}
		return false, wrapError("RestoreNoteVersion", err)
	}

	if err := s.saveNoteVersionLocked(ctx, noteID, curContent, curCategory, Importance(curImportance)); err != nil {
		return false, wrapError("RestoreNoteVersion", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE nodes SET content = ?, category = ?, importance = ? WHERE id = ?`,
		v.Content, v.Category, string(v.Importance), noteID)
	if err != nil {
		return false, wrapError("RestoreNoteVersion", err)
	}
	return true, nil
}
