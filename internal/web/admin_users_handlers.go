package web

import (
	"net/http"
	"strconv"

	"github.com/fsae-team/daqserver/internal/auth"
)

func (s *Server) handleAdminUsersList(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = toUserView(u)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAdminUsersCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		IsAdmin  bool     `json:"is_admin"`
		Roles    []string `json:"roles"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if err := auth.ValidateRoles(body.IsAdmin, body.Roles); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), body.Username, hash, body.IsAdmin, body.Roles)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

func (s *Server) handleAdminUsersDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminUsersSetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "password is required")
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.SetUserPassword(r.Context(), id, hash); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminUsersSetRoles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var body struct {
		Roles []string `json:"roles"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if err := auth.ValidateRoles(false, body.Roles); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.SetUserRoles(r.Context(), id, body.Roles); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
