package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetUserPref returns one stored preference value for a user, or
// ErrNotFound if never set.
func (s *Store) GetUserPref(ctx context.Context, userID int64, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM user_prefs WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SetUserPref creates or replaces one stored preference value for a user.
func (s *Store) SetUserPref(ctx context.Context, userID int64, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO user_prefs (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	return err
}
