package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// GetWatchConfig returns the configured LDX watch directory, which may
// be nil if never configured.
func (s *Store) GetWatchConfig(ctx context.Context) (*string, error) {
	var path sql.NullString
	if err := s.conn.QueryRowContext(ctx, `SELECT path FROM watch_config WHERE id = 1`).Scan(&path); err != nil {
		return nil, err
	}
	if !path.Valid {
		return nil, nil
	}
	p := path.String
	return &p, nil
}

// SetWatchConfig updates the configured LDX watch directory.
func (s *Store) SetWatchConfig(ctx context.Context, path string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE watch_config SET path = ? WHERE id = 1`, path)
	return err
}

// GetSerialConfig returns the singleton serial port configuration.
func (s *Store) GetSerialConfig(ctx context.Context) (*SerialConfig, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT port, baud_rate, data_format, csv_channel_order, csv_separator, timeout_seconds, reconnect_interval_seconds
		FROM serial_config WHERE id = 1
	`)
	var cfg SerialConfig
	var csvChannelOrderJSON string
	if err := row.Scan(&cfg.Port, &cfg.BaudRate, &cfg.DataFormat, &csvChannelOrderJSON,
		&cfg.CSVSeparator, &cfg.TimeoutSeconds, &cfg.ReconnectIntervalS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(csvChannelOrderJSON), &cfg.CSVChannelOrder); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetSerialConfig replaces the singleton serial port configuration.
func (s *Store) SetSerialConfig(ctx context.Context, cfg SerialConfig) error {
	channelOrderJSON, err := json.Marshal(cfg.CSVChannelOrder)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		UPDATE serial_config SET
			port = ?, baud_rate = ?, data_format = ?, csv_channel_order = ?,
			csv_separator = ?, timeout_seconds = ?, reconnect_interval_seconds = ?
		WHERE id = 1
	`, cfg.Port, cfg.BaudRate, cfg.DataFormat, string(channelOrderJSON),
		cfg.CSVSeparator, cfg.TimeoutSeconds, cfg.ReconnectIntervalS)
	return err
}

// GetSourcePreference returns the telemetry source preference: "auto",
// "serial", or "simulated".
func (s *Store) GetSourcePreference(ctx context.Context) (string, error) {
	var pref string
	err := s.conn.QueryRowContext(ctx, `SELECT preference FROM source_preference WHERE id = 1`).Scan(&pref)
	return pref, err
}

// SetSourcePreference updates the telemetry source preference.
func (s *Store) SetSourcePreference(ctx context.Context, pref string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE source_preference SET preference = ? WHERE id = 1`, pref)
	return err
}
