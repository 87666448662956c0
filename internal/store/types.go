package store

import "time"

// User is a dashboard account. Admins have no subteam roles; non-admins
// carry one or two.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// FieldValue is the current and previous stored value for one form field.
type FieldValue struct {
	Value         *string    `json:"value"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	UpdatedBy     *int64     `json:"updated_by,omitempty"`
	PreviousValue *string    `json:"previous_value,omitempty"`
}

// AuditEntry is one append-only audit row.
type AuditEntry struct {
	ID        int64     `json:"id"`
	FormName  string    `json:"form_name"`
	FieldName string    `json:"field_name"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy *int64    `json:"changed_by"`
}

// LdxFile records that a file has been processed by the watcher.
type LdxFile struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	ContentHash string    `json:"content_hash"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// InjectionRow is one injected field, to be appended in a batch tied to a
// single processed LdxFile.
type InjectionRow struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	FieldID    string    `json:"field_id"`
	Value      string    `json:"value"`
	WasUpdate  bool      `json:"was_update"`
	InjectedAt time.Time `json:"injected_at"`
}

// Sensor drives the telemetry channel catalog.
type Sensor struct {
	SensorID  string  `json:"sensor_id"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	MinValue  float64 `json:"min_value"`
	MaxValue  float64 `json:"max_value"`
	Group     string  `json:"group"`
	SortOrder int     `json:"sort_order"`
	Enabled   bool    `json:"enabled"`
}

// SerialConfig is the singleton serial port configuration.
type SerialConfig struct {
	Port               string   `json:"port"`
	BaudRate           int      `json:"baud_rate"`
	DataFormat         string   `json:"data_format"` // csv | motec_binary | auto
	CSVChannelOrder    []string `json:"csv_channel_order"`
	CSVSeparator       string   `json:"csv_separator"`
	TimeoutSeconds     float64  `json:"timeout_seconds"`
	ReconnectIntervalS float64  `json:"reconnect_interval_s"`
}
