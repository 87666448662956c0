package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fsae-team/daqserver/internal/store"
)

// errorEnvelope is the wire shape for failed auth checks. It mirrors the
// {"detail": "..."} shape used by the rest of the HTTP surface so a
// client never has to special-case auth failures.
type errorEnvelope struct {
	Detail string `json:"detail"`
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Detail: detail})
}

// NewMiddleware builds HTTP middleware that requires a valid
// "Authorization: Bearer <token>" header, re-verifies the subject still
// exists in s on every request, and injects a *Principal into the
// request context for downstream handlers.
func NewMiddleware(iss *Issuer, s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := Authenticate(r.Context(), iss, s, bearerToken(r))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminMiddleware wraps a handler that has already passed through
// NewMiddleware, rejecting non-admin principals with 403.
func RequireAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok || !RequireAdmin(p) {
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Authenticate verifies tokenString and loads the backing user, failing
// if the user has since been deleted — required so a revoked account
// loses access before its token's natural expiry. Exported so the
// WebSocket upgrade path (which carries its token as a query parameter,
// not an Authorization header) can reuse it.
func Authenticate(ctx context.Context, iss *Issuer, s *store.Store, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, errMissingToken
	}
	claims, err := iss.Verify(tokenString)
	if err != nil {
		return nil, errInvalidToken
	}
	u, err := s.GetUserByID(ctx, claims.UID)
	if err != nil {
		return nil, errInvalidToken
	}
	return &Principal{
		UID:      u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		Roles:    u.Roles,
	}, nil
}
