package valueservice

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/store"
)

const electronicsYAML = `
form_name: Electronics
role: electronics
fields:
  - name: battery_voltage
    label: Battery Voltage
    type: number
    lookback: true
  - name: logging_mode
    label: Logging Mode
    type: select
    options: [full, minimal, off]
  - name: notes
    label: Notes
    type: textarea
`

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "electronics.yaml"), []byte(electronicsYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	reg, err := formregistry.Load(dir)
	if err != nil {
		t.Fatalf("formregistry.Load: %v", err)
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, reg), s
}

func TestSubmitCoercesAndRejectsInvalidValues(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "e1", "hash", false, []string{"electronics"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := svc.Submit(ctx, "electronics", u.ID, map[string]string{"battery_voltage": "not-a-number"}); err == nil {
		t.Fatal("expected error for non-numeric value in number field")
	}
	if _, err := svc.Submit(ctx, "electronics", u.ID, map[string]string{"logging_mode": "bogus"}); err == nil {
		t.Fatal("expected error for out-of-range select value")
	}

	changed, err := svc.Submit(ctx, "electronics", u.ID, map[string]string{
		"battery_voltage": "52.1",
		"logging_mode":    "full",
		"unknown_field":   "ignored",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 changed fields, got %d", changed)
	}
}

func TestGetPrefillIncludesPreviousValueOnlyForLookbackFields(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "e1", "hash", false, []string{"electronics"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := svc.Submit(ctx, "electronics", u.ID, map[string]string{"battery_voltage": "50", "notes": "first"}); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	if _, err := svc.Submit(ctx, "electronics", u.ID, map[string]string{"battery_voltage": "51", "notes": "second"}); err != nil {
		t.Fatalf("Submit 2: %v", err)
	}

	prefill, err := svc.GetPrefill(ctx, "electronics")
	if err != nil {
		t.Fatalf("GetPrefill: %v", err)
	}

	voltage := prefill.Values["battery_voltage"]
	if voltage == nil || *voltage != "51" {
		t.Fatalf("expected current voltage 51, got %+v", voltage)
	}
	prevVoltage := prefill.PreviousValues["battery_voltage"]
	if prevVoltage == nil || *prevVoltage != "50" {
		t.Fatalf("expected previous voltage 50 (lookback field), got %+v", prevVoltage)
	}

	if prev, ok := prefill.PreviousValues["notes"]; ok {
		t.Fatalf("notes is not a lookback field, expected no previous value entry, got %+v", prev)
	}
}

func TestSubmitSerializesPerRole(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "e1", "hash", false, []string{"electronics"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = svc.Submit(ctx, "electronics", u.ID, map[string]string{
				"battery_voltage": "50",
			})
		}(i)
	}
	wg.Wait()

	_, total, err := s.ListAudit(ctx, "electronics", 100, 0)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	// Only the first submission actually changes the value; the rest are
	// no-ops, so exactly one audit entry should exist despite 20 racers.
	if total != 1 {
		t.Fatalf("expected exactly 1 audit entry from concurrent identical submits, got %d", total)
	}
}
