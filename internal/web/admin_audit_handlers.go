package web

import "net/http"

func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 50)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	formName := r.URL.Query().Get("form_name")

	items, total, err := s.store.ListAudit(r.Context(), formName, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}
