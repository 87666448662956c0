package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetLdxFile returns the recorded state for a previously processed LDX
// file, or ErrNotFound if it has never been seen.
func (s *Store) GetLdxFile(ctx context.Context, name string) (*LdxFile, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT name, size, modified_at, content_hash, first_seen_at FROM ldx_files WHERE name = ?`, name)
	var f LdxFile
	var modifiedAt, firstSeenAt string
	if err := row.Scan(&f.Name, &f.Size, &modifiedAt, &f.ContentHash, &firstSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if f.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, err
	}
	if f.FirstSeenAt, err = parseTime(firstSeenAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListLdxFiles returns all recorded LDX files ordered by name.
func (s *Store) ListLdxFiles(ctx context.Context) ([]*LdxFile, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT name, size, modified_at, content_hash, first_seen_at FROM ldx_files ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*LdxFile
	for rows.Next() {
		var f LdxFile
		var modifiedAt, firstSeenAt string
		if err := rows.Scan(&f.Name, &f.Size, &modifiedAt, &f.ContentHash, &firstSeenAt); err != nil {
			return nil, err
		}
		if f.ModifiedAt, err = parseTime(modifiedAt); err != nil {
			return nil, err
		}
		if f.FirstSeenAt, err = parseTime(firstSeenAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// ListInjectionsForFile returns the injection log rows recorded for one
// processed file, in injection order.
func (s *Store) ListInjectionsForFile(ctx context.Context, fileName string) ([]*InjectionRow, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, file_name, field_id, value, was_update, injected_at FROM injection_log WHERE file_name = ? ORDER BY injected_at`,
		fileName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InjectionRow
	for rows.Next() {
		var r InjectionRow
		var injectedAt string
		var wasUpdate int
		if err := rows.Scan(&r.ID, &r.FileName, &r.FieldID, &r.Value, &wasUpdate, &injectedAt); err != nil {
			return nil, err
		}
		r.WasUpdate = wasUpdate != 0
		if r.InjectedAt, err = parseTime(injectedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RecordProcessedFile records (or re-records, on content change) that a
// file has been processed, and appends its injection rows, all in one
// transaction. firstSeenAt is preserved across re-processing of a file
// whose content changed after its first pass.
func (s *Store) RecordProcessedFile(ctx context.Context, file LdxFile, injections []InjectionRow) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existingFirstSeen sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT first_seen_at FROM ldx_files WHERE name = ?`, file.Name).Scan(&existingFirstSeen)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		firstSeenAt := file.FirstSeenAt
		if existingFirstSeen.Valid {
			t, err := parseTime(existingFirstSeen.String)
			if err != nil {
				return err
			}
			firstSeenAt = t
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ldx_files (name, size, modified_at, content_hash, first_seen_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				size = excluded.size,
				modified_at = excluded.modified_at,
				content_hash = excluded.content_hash
		`, file.Name, file.Size, file.ModifiedAt.UTC().Format("2006-01-02 15:04:05"),
			file.ContentHash, firstSeenAt.UTC().Format("2006-01-02 15:04:05")); err != nil {
			return err
		}

		for _, inj := range injections {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO injection_log (id, file_name, field_id, value, was_update, injected_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, inj.ID, file.Name, inj.FieldID, inj.Value, boolToInt(inj.WasUpdate),
				inj.InjectedAt.UTC().Format("2006-01-02 15:04:05")); err != nil {
				return err
			}
		}
		return nil
	})
}
