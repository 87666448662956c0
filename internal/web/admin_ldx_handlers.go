package web

import "net/http"

func (s *Server) handleLdxFilesList(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListLdxFiles(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleLdxFileGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := s.store.GetLdxFile(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleLdxInjections(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rows, err := s.store.ListInjectionsForFile(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleLdxStats returns per-file injection counts, split by the
// was_update flag: "updated" counts rows with was_update=true, "injected"
// counts the rest.
func (s *Server) handleLdxStats(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListLdxFiles(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}

	type fileStats struct {
		Name      string `json:"name"`
		Injected  int    `json:"injected"`
		Updated   int    `json:"updated"`
		FirstSeen string `json:"first_seen_at"`
	}

	stats := make([]fileStats, 0, len(files))
	for _, f := range files {
		rows, err := s.store.ListInjectionsForFile(r.Context(), f.Name)
		if err != nil {
			writeErr(w, err)
			return
		}
		fs := fileStats{Name: f.Name, FirstSeen: f.FirstSeenAt.UTC().Format("2006-01-02T15:04:05Z")}
		for _, row := range rows {
			if row.WasUpdate {
				fs.Updated++
			} else {
				fs.Injected++
			}
		}
		stats = append(stats, fs)
	}
	writeJSON(w, http.StatusOK, stats)
}
