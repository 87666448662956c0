package web

import (
	"net/http"

	"github.com/fsae-team/daqserver/internal/auth"
)

// handleFormsList returns the schemas visible to the caller (admins see
// every schema; others see only their own roles).
func (s *Server) handleFormsList(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, s.registry.ListForVisibleTo(p))
}

// handleFormValues returns the current prefill snapshot for a role.
func (s *Server) handleFormValues(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	role := r.PathValue("role")
	if !auth.CanReadForm(p, role) {
		writeDetail(w, http.StatusForbidden, "not authorized to read this role's form")
		return
	}

	prefill, err := s.values.GetPrefill(r.Context(), role)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefill)
}

// handleFormSubmit coerces and persists a batch of field values for a
// role, returning how many fields actually changed.
func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	role := r.PathValue("role")
	if !auth.CanWriteForm(p, role) {
		writeDetail(w, http.StatusForbidden, "not authorized to submit this role's form")
		return
	}

	var body struct {
		Values map[string]string `json:"values"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}

	n, err := s.values.Submit(r.Context(), role, p.UID, body.Values)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": n})
}

// handleFormsReload re-reads every form descriptor from disk, leaving the
// previously loaded schemas in place if any descriptor fails to parse.
func (s *Server) handleFormsReload(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Reload(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.watcher != nil {
		s.watcher.NotifyPathChanged()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
