// Package valueservice implements prefill and submission of per-role
// form values: type coercion, diffing against stored state, and
// serialized, audited writes.
package valueservice

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/store"
)

// Prefill is the full set of field states for a role, keyed by field name
// across three parallel maps: current values, last-updated timestamps
// (UNIX seconds), and previous values (present only for lookback fields).
type Prefill struct {
	Values         map[string]*string `json:"values"`
	Timestamps     map[string]int64   `json:"timestamps"`
	PreviousValues map[string]*string `json:"previous_values"`
}

// Service coerces, diffs, and persists form submissions, serializing
// writes per role.
type Service struct {
	store    *store.Store
	registry *formregistry.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Service backed by s and reg.
func New(s *store.Store, reg *formregistry.Registry) *Service {
	return &Service{
		store:    s,
		registry: reg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-role mutex, creating it on first use.
func (svc *Service) lockFor(role string) *sync.Mutex {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	l, ok := svc.locks[role]
	if !ok {
		l = &sync.Mutex{}
		svc.locks[role] = l
	}
	return l
}

// GetPrefill returns the current values, update timestamps, and (for
// lookback fields) previous values for role's schema.
func (svc *Service) GetPrefill(ctx context.Context, role string) (Prefill, error) {
	schema, ok := svc.registry.Get(role)
	if !ok {
		return Prefill{}, fmt.Errorf("%w: no form for role %q", store.ErrNotFound, role)
	}

	stored, err := svc.store.GetFieldValues(ctx, role)
	if err != nil {
		return Prefill{}, fmt.Errorf("get field values: %w", err)
	}

	out := Prefill{
		Values:         make(map[string]*string, len(schema.Fields)),
		Timestamps:     make(map[string]int64, len(schema.Fields)),
		PreviousValues: make(map[string]*string, len(schema.Fields)),
	}
	for _, field := range schema.Fields {
		fv, ok := stored[field.Name]
		if !ok {
			out.Values[field.Name] = nil
			continue
		}
		out.Values[field.Name] = fv.Value
		if fv.UpdatedAt != nil {
			out.Timestamps[field.Name] = fv.UpdatedAt.Unix()
		}
		if field.Lookback {
			out.PreviousValues[field.Name] = fv.PreviousValue
		}
	}
	return out, nil
}

// Submit coerces, validates, and writes valuesIn for role, serialized
// behind that role's mutex. It returns the number of fields that
// actually changed.
func (svc *Service) Submit(ctx context.Context, role string, userID int64, valuesIn map[string]string) (int, error) {
	schema, ok := svc.registry.Get(role)
	if !ok {
		return 0, fmt.Errorf("%w: no form for role %q", store.ErrNotFound, role)
	}

	coerced := make(map[string]string, len(valuesIn))
	for name, raw := range valuesIn {
		field := schema.Field(name)
		if field == nil {
			continue // silently ignore keys the schema doesn't define
		}
		value, err := coerce(field, raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", store.ErrValidation, err)
		}
		coerced[name] = value
	}

	lock := svc.lockFor(role)
	lock.Lock()
	defer lock.Unlock()

	results, err := svc.store.SubmitFieldValues(ctx, schema.FormName, role, userID, coerced)
	if err != nil {
		return 0, fmt.Errorf("submit field values: %w", err)
	}

	changed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
	}
	return changed, nil
}

// coerce validates raw against field's type and returns its normalized
// string form. number fields must parse as float64; select fields must
// be one of the configured options; text/textarea are only trimmed.
func coerce(field *formregistry.FormField, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch field.Type {
	case formregistry.FieldNumber:
		if trimmed == "" {
			return "", nil
		}
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return "", fmt.Errorf("field %q: %q is not a number", field.Name, raw)
		}
		return trimmed, nil
	case formregistry.FieldSelect:
		if trimmed == "" {
			return "", nil
		}
		for _, opt := range field.Options {
			if opt == trimmed {
				return trimmed, nil
			}
		}
		return "", fmt.Errorf("field %q: %q is not one of %v", field.Name, raw, field.Options)
	default:
		return trimmed, nil
	}
}
