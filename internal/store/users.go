package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser inserts a new user with the given roles. Roles are ignored
// for admins. Returns ErrConflict if the username is already taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool, roles []string) (*User, error) {
	var u *User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)`,
			username, passwordHash, boolToInt(isAdmin))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if !isAdmin {
			for _, role := range roles {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, id, role); err != nil {
					return err
				}
			}
		}
		row := tx.QueryRowContext(ctx, `SELECT id, username, password_hash, is_admin, created_at FROM users WHERE id = ?`, id)
		var created User
		var createdAt string
		if err := row.Scan(&created.ID, &created.Username, &created.PasswordHash, &created.IsAdmin, &createdAt); err != nil {
			return err
		}
		created.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return err
		}
		if !isAdmin {
			created.Roles = append([]string(nil), roles...)
		}
		u = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername loads a user (with roles) by username. Returns
// ErrNotFound if no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin, created_at FROM users WHERE username = ?`, username)
	return s.scanUserWithRoles(ctx, row)
}

// GetUserByID loads a user (with roles) by id. Returns ErrNotFound if no
// such user exists.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin, created_at FROM users WHERE id = ?`, id)
	return s.scanUserWithRoles(ctx, row)
}

func (s *Store) scanUserWithRoles(ctx context.Context, row *sql.Row) (*User, error) {
	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t

	if !u.IsAdmin {
		roles, err := s.rolesForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.Roles = roles
	}
	return &u, nil
}

func (s *Store) rolesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListUsers returns all users ordered by username, each with roles loaded.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, username, password_hash, is_admin, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		u.CreatedAt = t
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range users {
		if !u.IsAdmin {
			roles, err := s.rolesForUser(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			u.Roles = roles
		}
	}
	return users, nil
}

// CountAdmins returns the number of admin users.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&n)
	return n, err
}

// CountUsers returns the total number of users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// DeleteUser removes a user. Returns ErrValidation if deleting would leave
// the system with zero admins.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var isAdmin bool
		if err := tx.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = ?`, id).Scan(&isAdmin); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if isAdmin {
			var adminCount int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&adminCount); err != nil {
				return err
			}
			if adminCount <= 1 {
				return fmt.Errorf("%w: cannot delete the last admin", ErrValidation)
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		return err
	})
}

// SetUserPassword updates a user's password hash.
func (s *Store) SetUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserRoles replaces a non-admin user's role set.
func (s *Store) SetUserRoles(ctx context.Context, id int64, roles []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, id); err != nil {
			return err
		}
		for _, role := range roles {
			if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, id, role); err != nil {
				return err
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
