package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/config"
	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/ldxwatcher"
	"github.com/fsae-team/daqserver/internal/store"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
	"github.com/fsae-team/daqserver/internal/valueservice"
)

const driverFormYAML = `
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
`

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor %s: %v", name, err)
	}
}

// newTestServer wires a Server against a temp SQLite store and a temp
// forms directory, the same components app.Boot assembles in production.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	formsDir := t.TempDir()
	writeDescriptor(t, formsDir, "driver.yaml", driverFormYAML)
	registry, err := formregistry.Load(formsDir)
	if err != nil {
		t.Fatalf("formregistry.Load: %v", err)
	}

	cfg := &config.Config{
		HTTPPort:       8000,
		AllowedOrigins: []string{"*"},
	}
	issuer := auth.NewIssuer("test-secret")
	values := valueservice.New(st, registry)
	watcher := ldxwatcher.New(st, registry)

	return New(cfg, Deps{
		Store:    st,
		Issuer:   issuer,
		Registry: registry,
		Values:   values,
		Watcher:  watcher,
		Hub:      hub.New(),
	})
}

func (s *Server) handler() http.Handler {
	return s.withCORS(s.mux)
}

func createTestUser(t *testing.T, s *Server, username, password string, isAdmin bool, roles []string) *store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := s.store.CreateUser(context.Background(), username, hash, isAdmin, roles)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func tokenFor(t *testing.T, s *Server, u *store.User) string {
	t.Helper()
	tok, err := s.issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginUnknownUsernameAndWrongPassword(t *testing.T) {
	s := newTestServer(t)
	createTestUser(t, s, "alice", "correct-horse", true, nil)

	form := url.Values{"username": {"bob"}, "password": {"whatever"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown username, got %d", rec.Code)
	}
	var body detailEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Detail != "unknown username" {
		t.Fatalf("expected unknown username detail, got %q", body.Detail)
	}

	form = url.Values{"username": {"alice"}, "password": {"wrong"}}
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestLoginSucceedsAndIssuesUsableToken(t *testing.T) {
	s := newTestServer(t)
	createTestUser(t, s, "alice", "correct-horse", true, nil)

	form := url.Values{"username": {"alice"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}

	rec = doJSON(t, s.handler(), http.MethodGet, "/auth/me", out.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", rec.Code)
	}
}

func TestFormsVisibilityAndSubmitAuthorization(t *testing.T) {
	s := newTestServer(t)
	driver := createTestUser(t, s, "driver1", "pw", false, []string{"driver"})
	electronics := createTestUser(t, s, "elec1", "pw", false, []string{"electronic"})
	driverTok := tokenFor(t, s, driver)
	electronicsTok := tokenFor(t, s, electronics)

	rec := doJSON(t, s.handler(), http.MethodGet, "/forms", driverTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var schemas []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &schemas); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(schemas) != 1 {
		t.Fatalf("expected driver to see exactly 1 form, got %d", len(schemas))
	}

	rec = doJSON(t, s.handler(), http.MethodGet, "/forms/driver/values", electronicsTok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for electronics reading driver form, got %d", rec.Code)
	}

	rec = doJSON(t, s.handler(), http.MethodPost, "/forms/driver/submit", driverTok,
		map[string]any{"values": map[string]string{"driver_name": "Max", "weight_kg": "70"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 submitting own form, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if saved["saved"] != 2 {
		t.Fatalf("expected 2 fields saved, got %d", saved["saved"])
	}
}

func TestAdminUsersRequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	driver := createTestUser(t, s, "driver1", "pw", false, []string{"driver"})
	admin := createTestUser(t, s, "admin1", "pw", true, nil)
	driverTok := tokenFor(t, s, driver)
	adminTok := tokenFor(t, s, admin)

	rec := doJSON(t, s.handler(), http.MethodGet, "/admin/users", driverTok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = doJSON(t, s.handler(), http.MethodGet, "/admin/users", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	var users []userView
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestAdminUsersCreateRejectsInvalidRoles(t *testing.T) {
	s := newTestServer(t)
	admin := createTestUser(t, s, "admin1", "pw", true, nil)
	adminTok := tokenFor(t, s, admin)

	rec := doJSON(t, s.handler(), http.MethodPost, "/admin/users", adminTok,
		map[string]any{"username": "new1", "password": "pw", "is_admin": false, "roles": []string{"not-a-role"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown role, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s.handler(), http.MethodPost, "/admin/users", adminTok,
		map[string]any{"username": "new2", "password": "pw", "is_admin": false, "roles": []string{"driver"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRolesEndpointReturnsClosedRoleSet(t *testing.T) {
	s := newTestServer(t)
	u := createTestUser(t, s, "driver1", "pw", false, []string{"driver"})
	tok := tokenFor(t, s, u)

	rec := doJSON(t, s.handler(), http.MethodGet, "/roles", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var roles []string
	if err := json.Unmarshal(rec.Body.Bytes(), &roles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(roles) != len(auth.ClosedRoles) {
		t.Fatalf("expected %d roles, got %d", len(auth.ClosedRoles), len(roles))
	}
}
