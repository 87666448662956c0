package web

import (
	"errors"
	"net/http"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/store"
)

// handleLogin authenticates a username/password form post and issues a
// JWT. Unknown-username and bad-password failures use distinct messages,
// a deliberate product requirement rather than a security leak.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed form body")
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	u, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusUnauthorized, "unknown username")
			return
		}
		writeErr(w, err)
		return
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		writeDetail(w, http.StatusUnauthorized, "incorrect password")
		return
	}

	token, err := s.issuer.Issue(u)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// handleMe returns the authenticated caller's user record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	u, err := s.store.GetUserByID(r.Context(), p.UID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

// handleRoles returns the closed subteam role set.
func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.ClosedRoles)
}

type userView struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	IsAdmin   bool     `json:"is_admin"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at"`
}

func toUserView(u *store.User) userView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		Roles:     roles,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
