package store

import (
	"context"
	"database/sql"
	"errors"
)

// ListSensors returns the sensor catalog ordered for display.
func (s *Store) ListSensors(ctx context.Context) ([]*Sensor, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT sensor_id, name, unit, min_value, max_value, group_name, sort_order, enabled
		FROM sensors ORDER BY sort_order, sensor_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Sensor
	for rows.Next() {
		var sn Sensor
		var enabled int
		if err := rows.Scan(&sn.SensorID, &sn.Name, &sn.Unit, &sn.MinValue, &sn.MaxValue, &sn.Group, &sn.SortOrder, &enabled); err != nil {
			return nil, err
		}
		sn.Enabled = enabled != 0
		out = append(out, &sn)
	}
	return out, rows.Err()
}

// GetSensor returns a single sensor by id, or ErrNotFound.
func (s *Store) GetSensor(ctx context.Context, sensorID string) (*Sensor, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT sensor_id, name, unit, min_value, max_value, group_name, sort_order, enabled
		FROM sensors WHERE sensor_id = ?
	`, sensorID)
	var sn Sensor
	var enabled int
	if err := row.Scan(&sn.SensorID, &sn.Name, &sn.Unit, &sn.MinValue, &sn.MaxValue, &sn.Group, &sn.SortOrder, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sn.Enabled = enabled != 0
	return &sn, nil
}

// UpsertSensor creates or replaces a sensor definition.
func (s *Store) UpsertSensor(ctx context.Context, sn Sensor) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sensors (sensor_id, name, unit, min_value, max_value, group_name, sort_order, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sensor_id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			group_name = excluded.group_name,
			sort_order = excluded.sort_order,
			enabled = excluded.enabled
	`, sn.SensorID, sn.Name, sn.Unit, sn.MinValue, sn.MaxValue, sn.Group, sn.SortOrder, boolToInt(sn.Enabled))
	return err
}

// DeleteSensor removes a sensor from the catalog.
func (s *Store) DeleteSensor(ctx context.Context, sensorID string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM sensors WHERE sensor_id = ?`, sensorID)
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

// CountSensors returns the number of sensors in the catalog, used to
// decide whether the default catalog needs seeding on first boot.
func (s *Store) CountSensors(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensors`).Scan(&n)
	return n, err
}
