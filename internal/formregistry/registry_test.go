package formregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsae-team/daqserver/internal/auth"
)

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

const driverYAML = `
form_name: Driver Info
role: driver
fields:
  - name: driver_name
    label: Driver Name
    type: text
    tab: general
  - name: weight_kg
    label: Weight (kg)
    type: number
    tab: general
    lookback: true
`

const electronicsYAML = `
form_name: Electronics
role: electronics
fields:
  - name: battery_voltage
    label: Battery Voltage
    type: number
  - name: logging_mode
    label: Logging Mode
    type: select
    options: [full, minimal, off]
`

func TestLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "driver.yaml", driverYAML)
	writeDescriptor(t, dir, "electronics.yaml", electronicsYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	schema, ok := reg.Get("driver")
	if !ok {
		t.Fatal("expected driver schema to load")
	}
	if len(schema.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(schema.Fields))
	}
	if tabs := reg.Tabs("driver"); len(tabs) != 1 || tabs[0] != "general" {
		t.Fatalf("expected tabs [general], got %v", tabs)
	}
}

func TestDuplicateRoleIsStartupError(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", driverYAML)
	writeDescriptor(t, dir, "b.yaml", driverYAML)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected duplicate role to be a startup error")
	}
}

func TestSelectWithoutOptionsIsStartupError(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "bad.yaml", `
form_name: Bad
role: bad
fields:
  - name: mode
    type: select
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected select field with no options to be a startup error")
	}
}

func TestListForVisibleToFiltersByRole(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "driver.yaml", driverYAML)
	writeDescriptor(t, dir, "electronics.yaml", electronicsYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	driver := &auth.Principal{Roles: []string{"driver"}}
	visible := reg.ListForVisibleTo(driver)
	if len(visible) != 1 || visible[0].Role != "driver" {
		t.Fatalf("expected only driver form visible, got %+v", visible)
	}

	admin := &auth.Principal{IsAdmin: true}
	visible = reg.ListForVisibleTo(admin)
	if len(visible) != 2 {
		t.Fatalf("expected admin to see both forms, got %d", len(visible))
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "driver.yaml", driverYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := reg.Get("electronics"); ok {
		t.Fatal("electronics should not exist before reload")
	}

	writeDescriptor(t, dir, "electronics.yaml", electronicsYAML)
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := reg.Get("electronics"); !ok {
		t.Fatal("expected electronics to exist after reload")
	}
}

func TestReloadLeavesPriorSchemasOnError(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "driver.yaml", driverYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeDescriptor(t, dir, "bad.yaml", `
form_name: Bad
role: bad
fields:
  - name: mode
    type: select
`)
	if err := reg.Reload(); err == nil {
		t.Fatal("expected Reload to fail on invalid descriptor")
	}
	if _, ok := reg.Get("driver"); !ok {
		t.Fatal("expected driver schema to survive a failed reload")
	}
}
