package store

import "context"

// SnapshotTo writes a consistent copy of the database to path, used by
// sleep-compute before any destructive maintenance step runs (§4.13 step 1).
func (s *Store) SnapshotTo(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return wrapError("SnapshotTo", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path)
	return wrapError("SnapshotTo", err)
}
