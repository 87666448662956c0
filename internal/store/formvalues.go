package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// GetFieldValues returns all stored field values for a role, keyed by
// field name. Fields never written are simply absent from the map.
func (s *Store) GetFieldValues(ctx context.Context, role string) (map[string]FieldValue, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT field_name, value, updated_at, updated_by, previous_value FROM form_values WHERE role = ?`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]FieldValue)
	for rows.Next() {
		var fieldName string
		var value, previousValue sql.NullString
		var updatedAt sql.NullString
		var updatedBy sql.NullInt64
		if err := rows.Scan(&fieldName, &value, &updatedAt, &updatedBy, &previousValue); err != nil {
			return nil, err
		}
		fv := FieldValue{}
		if value.Valid {
			v := value.String
			fv.Value = &v
		}
		if previousValue.Valid {
			p := previousValue.String
			fv.PreviousValue = &p
		}
		if updatedAt.Valid {
			t, err := parseTime(updatedAt.String)
			if err != nil {
				return nil, err
			}
			fv.UpdatedAt = &t
		}
		if updatedBy.Valid {
			u := updatedBy.Int64
			fv.UpdatedBy = &u
		}
		out[fieldName] = fv
	}
	return out, rows.Err()
}

// SubmitResult describes the outcome of one field write inside a Submit
// call, for building the audit response and the telemetry-unrelated
// change notification.
type SubmitResult struct {
	FieldName string
	Changed   bool
	OldValue  *string
	NewValue  *string
}

// SubmitFieldValues writes a batch of field values for a role inside a
// single transaction, skipping fields whose trimmed value is unchanged,
// and appends one audit_entries row per changed field. previous_value
// advances only when the value actually changes.
func (s *Store) SubmitFieldValues(ctx context.Context, formName, role string, userID int64, values map[string]string) ([]SubmitResult, error) {
	var results []SubmitResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format("2006-01-02 15:04:05")
		for fieldName, rawValue := range values {
			newValue := strings.TrimSpace(rawValue)

			var existing sql.NullString
			err := tx.QueryRowContext(ctx,
				`SELECT value FROM form_values WHERE role = ? AND field_name = ?`, role, fieldName).Scan(&existing)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			var oldValue *string
			oldTrimmed := ""
			if existing.Valid {
				oldTrimmed = strings.TrimSpace(existing.String)
				v := existing.String
				oldValue = &v
			}

			if oldTrimmed == newValue {
				results = append(results, SubmitResult{FieldName: fieldName, Changed: false, OldValue: oldValue, NewValue: oldValue})
				continue
			}

			newValuePtr := &newValue
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO form_values (role, field_name, value, updated_at, updated_by, previous_value)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(role, field_name) DO UPDATE SET
					previous_value = form_values.value,
					value = excluded.value,
					updated_at = excluded.updated_at,
					updated_by = excluded.updated_by
			`, role, fieldName, newValue, now, userID, oldValue); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO audit_entries (form_name, field_name, old_value, new_value, changed_at, changed_by)
				VALUES (?, ?, ?, ?, ?, ?)
			`, formName, fieldName, oldValue, newValuePtr, now, userID); err != nil {
				return err
			}

			results = append(results, SubmitResult{FieldName: fieldName, Changed: true, OldValue: oldValue, NewValue: newValuePtr})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListAudit returns a page of audit entries, most recent first, optionally
// filtered by form name, along with the total matching row count.
func (s *Store) ListAudit(ctx context.Context, formName string, limit, offset int) ([]*AuditEntry, int, error) {
	where := ""
	args := []any{}
	if formName != "" {
		where = "WHERE form_name = ?"
		args = append(args, formName)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_entries " + where
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT id, form_name, field_name, old_value, new_value, changed_at, changed_by FROM audit_entries " +
		where + " ORDER BY changed_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var oldValue, newValue sql.NullString
		var changedBy sql.NullInt64
		var changedAt string
		if err := rows.Scan(&e.ID, &e.FormName, &e.FieldName, &oldValue, &newValue, &changedAt, &changedBy); err != nil {
			return nil, 0, err
		}
		if oldValue.Valid {
			v := oldValue.String
			e.OldValue = &v
		}
		if newValue.Valid {
			v := newValue.String
			e.NewValue = &v
		}
		if changedBy.Valid {
			v := changedBy.Int64
			e.ChangedBy = &v
		}
		t, err := parseTime(changedAt)
		if err != nil {
			return nil, 0, err
		}
		e.ChangedAt = t
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
