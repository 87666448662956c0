package formregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fsae-team/daqserver/internal/auth"
)

// Registry holds the loaded form schemas, keyed by role, and supports an
// atomic reload from disk.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	schemas map[string]*FormSchema
}

// Load builds a Registry from every *.yaml file in dir. Duplicate roles
// across files are a startup error.
func Load(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every *.yaml descriptor in the registry's directory and
// atomically swaps the in-memory schema set on success. A failed reload
// leaves the previously loaded schemas in place.
func (r *Registry) Reload() error {
	schemas, err := loadSchemas(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.schemas = schemas
	r.mu.Unlock()
	return nil
}

func loadSchemas(dir string) (map[string]*FormSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read form descriptor directory %q: %w", dir, err)
	}

	schemas := make(map[string]*FormSchema)
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		var schema FormSchema
		if err := yaml.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("parse %q: %w", path, err)
		}
		if err := schema.validate(); err != nil {
			return nil, fmt.Errorf("%q: %w", path, err)
		}
		if _, exists := schemas[schema.Role]; exists {
			return nil, fmt.Errorf("duplicate role %q: %q and an earlier file both declare it", schema.Role, path)
		}
		schemas[schema.Role] = &schema
	}
	return schemas, nil
}

// Get returns the schema for role, or (nil, false) if no such role exists.
func (r *Registry) Get(role string) (*FormSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[role]
	return s, ok
}

// Tabs returns the ordered tab names for role's schema, or nil if the
// role is unknown.
func (r *Registry) Tabs(role string) []string {
	s, ok := r.Get(role)
	if !ok {
		return nil
	}
	return s.Tabs()
}

// ListForVisibleTo returns every schema p is authorized to read, sorted
// by role for stable output.
func (r *Registry) ListForVisibleTo(p *auth.Principal) []*FormSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roles []string
	for role := range r.schemas {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var out []*FormSchema
	for _, role := range roles {
		if auth.CanReadForm(p, role) {
			out = append(out, r.schemas[role])
		}
	}
	return out
}

// AllSchemas returns every loaded schema, used by the LDX watcher which
// injects across all roles regardless of the current caller's access.
func (r *Registry) AllSchemas() []*FormSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roles []string
	for role := range r.schemas {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	out := make([]*FormSchema, 0, len(roles))
	for _, role := range roles {
		out = append(out, r.schemas[role])
	}
	return out
}
