package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fsae-team/daqserver/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Fatal("expected correct password to verify")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "driver1", "hash", false, []string{"driver"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	iss := NewIssuer("test-secret")
	token, err := iss.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UID != u.ID || claims.Subject != u.Username {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "driver1", "hash", false, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, err := NewIssuer("secret-a").Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewIssuer("secret-b").Verify(token); err == nil {
		t.Fatal("expected verification with wrong secret to fail")
	}
}

func TestMiddlewareRejectsMissingAndRevokedUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "driver1", "hash", false, []string{"driver"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	iss := NewIssuer("test-secret")
	token, err := iss.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var sawPrincipal *Principal
	handler := NewMiddleware(iss, s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		sawPrincipal = p
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req) // no Authorization header
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if sawPrincipal == nil || sawPrincipal.UID != u.ID {
		t.Fatalf("expected principal injected, got %+v", sawPrincipal)
	}

	// DeleteUser's last-admin guard applies only to admins, so deleting
	// the non-admin u succeeds; admin2 leaves an account in the table.
	if _, err := s.CreateUser(ctx, "admin2", "hash", true, nil); err != nil {
		t.Fatalf("CreateUser admin2: %v", err)
	}
	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token of deleted user, got %d", rec.Code)
	}
}

func TestCanReadFormAndCanWriteForm(t *testing.T) {
	admin := &Principal{IsAdmin: true}
	driver := &Principal{Roles: []string{"driver"}}
	electronics := &Principal{Roles: []string{"electronics"}}

	if !CanReadForm(admin, "driver") {
		t.Fatal("admin should read any form")
	}
	if !CanReadForm(driver, "driver") {
		t.Fatal("driver should read driver form")
	}
	if CanReadForm(electronics, "driver") {
		t.Fatal("electronics should not read driver form")
	}
	if !CanWriteForm(driver, "driver") {
		t.Fatal("driver should write driver form")
	}
}

func TestBootstrapAdminOnlyOnEmptyUserTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := BootstrapAdmin(ctx, s, "admin", "changeme"); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	n, err := s.CountAdmins(ctx)
	if err != nil {
		t.Fatalf("CountAdmins: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 admin after bootstrap, got %d", n)
	}

	// Second call is a no-op since users now exist.
	if err := BootstrapAdmin(ctx, s, "someone-else", "whatever"); err != nil {
		t.Fatalf("BootstrapAdmin (second call): %v", err)
	}
	n, err = s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected user count to remain 1, got %d", n)
	}
}
