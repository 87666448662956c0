package store

import (
	"context"
	"database/sql"
)

// ClearRuntimeData deletes all form values, audit history, and LDX
// processing state, leaving users, roles, sensors, and configuration
// untouched. Used by the admin POST /admin/clear-data endpoint.
func (s *Store) ClearRuntimeData(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM injection_log`,
			`DELETE FROM ldx_files`,
			`DELETE FROM audit_entries`,
			`DELETE FROM form_values`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
