// Package formregistry loads form descriptors from YAML files on disk and
// answers schema and visibility queries about them.
package formregistry

import "fmt"

// FieldType is the tagged type of a FormField's input.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
)

// FormField describes one input within a FormSchema.
type FormField struct {
	Name           string    `yaml:"name" json:"name"`
	Label          string    `yaml:"label" json:"label"`
	Type           FieldType `yaml:"type" json:"type"`
	Required       bool      `yaml:"required" json:"required"`
	Options        []string  `yaml:"options,omitempty" json:"options,omitempty"`
	Placeholder    string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Unit           string    `yaml:"unit,omitempty" json:"unit,omitempty"`
	Tab            string    `yaml:"tab,omitempty" json:"tab,omitempty"`
	Lookback       bool      `yaml:"lookback,omitempty" json:"lookback,omitempty"`
	ValidityWindow *int64    `yaml:"validity_window,omitempty" json:"validity_window,omitempty"`
	UnixTimestamp  bool      `yaml:"unix_timestamp,omitempty" json:"unix_timestamp,omitempty"`
	Inject         string    `yaml:"inject,omitempty" json:"inject,omitempty"`
}

// InjectID returns the LDX field identifier this field should be injected
// under: its explicit alias, or its own name if none was given.
func (f *FormField) InjectID() string {
	if f.Inject != "" {
		return f.Inject
	}
	return f.Name
}

// validate checks invariants that can't be expressed in struct tags.
func (f *FormField) validate() error {
	if f.Name == "" {
		return fmt.Errorf("field missing name")
	}
	switch f.Type {
	case FieldText, FieldNumber, FieldTextarea:
		// no further constraints
	case FieldSelect:
		if len(f.Options) == 0 {
			return fmt.Errorf("field %q: select fields require options", f.Name)
		}
	default:
		return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
	return nil
}

// FormSchema is one descriptor file: exactly one role's worth of fields.
type FormSchema struct {
	FormName string      `yaml:"form_name" json:"form_name"`
	Role     string      `yaml:"role" json:"role"`
	Fields   []FormField `yaml:"fields" json:"fields"`
}

func (s *FormSchema) validate() error {
	if s.Role == "" {
		return fmt.Errorf("schema %q: missing role", s.FormName)
	}
	if s.FormName == "" {
		return fmt.Errorf("schema for role %q: missing form_name", s.Role)
	}
	for i := range s.Fields {
		if err := s.Fields[i].validate(); err != nil {
			return fmt.Errorf("schema %q: %w", s.FormName, err)
		}
	}
	return nil
}

// Tabs returns the ordered, de-duplicated, non-empty tab names across the
// schema's fields, in first-occurrence field order.
func (s *FormSchema) Tabs() []string {
	var tabs []string
	seen := make(map[string]bool)
	for _, f := range s.Fields {
		if f.Tab == "" || seen[f.Tab] {
			continue
		}
		seen[f.Tab] = true
		tabs = append(tabs, f.Tab)
	}
	return tabs
}

// Field returns the field with the given name, or nil.
func (s *FormSchema) Field(name string) *FormField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}
