package web

import "net/http"

func (s *Server) handleWatchDirGet(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.GetWatchConfig(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	value := ""
	if path != nil {
		value = *path
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": value})
}

func (s *Server) handleWatchDirPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if err := s.store.SetWatchConfig(r.Context(), body.Path); err != nil {
		writeErr(w, err)
		return
	}
	if s.watcher != nil {
		s.watcher.NotifyPathChanged()
	}
	w.WriteHeader(http.StatusNoContent)
}
