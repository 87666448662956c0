package store

import (
	"context"
	"fmt"
)

// ExportSnapshot writes a consistent point-in-time copy of the database
// to destPath using SQLite's VACUUM INTO, which takes its own read lock
// and never blocks on, or is blocked by, concurrent readers.
func (s *Store) ExportSnapshot(ctx context.Context, destPath string) error {
	_, err := s.conn.ExecContext(ctx, `VACUUM INTO ?`, destPath)
	if err != nil {
		return fmt.Errorf("vacuum into %q: %w", destPath, err)
	}
	return nil
}
