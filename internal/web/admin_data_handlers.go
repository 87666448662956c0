package web

import (
	"net/http"
	"path/filepath"
	"time"
)

// handleExportDB produces a timestamped, transactionally consistent
// database snapshot in the watch directory.
func (s *Server) handleExportDB(w http.ResponseWriter, r *http.Request) {
	dir, err := s.store.GetWatchConfig(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if dir == nil || *dir == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "no watch directory configured")
		return
	}

	filename := "export-" + time.Now().UTC().Format("20060102-150405") + ".db"
	dest := filepath.Join(*dir, filename)
	if err := s.store.ExportSnapshot(r.Context(), dest); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "filename": filename})
}

// handleClearData wipes runtime state (form values, audit, LDX records,
// injection log) while preserving users, sensors, and configuration.
func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearRuntimeData(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
