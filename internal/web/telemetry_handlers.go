package web

import (
	"errors"
	"net/http"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/store"
)

// dashboardLayoutPrefKey is the only per-user preference key the frontend
// currently uses: a JSON blob describing widget layout.
const dashboardLayoutPrefKey = "dashboard_layout"

func (s *Server) handleTelemetryChannels(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.store.ListSensors(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	enabled := make([]*store.Sensor, 0, len(sensors))
	for _, sn := range sensors {
		if sn.Enabled {
			enabled = append(enabled, sn)
		}
	}
	writeJSON(w, http.StatusOK, enabled)
}

func (s *Server) handleTelemetrySource(w http.ResponseWriter, r *http.Request) {
	pref, err := s.store.GetSourcePreference(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preference": pref,
		"active":     s.selector.Resolve(r.Context()),
		"serial":     s.serial.Stats(),
	})
}

func (s *Server) handlePreferencesGet(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	config, err := s.store.GetUserPref(r.Context(), p.UID, dashboardLayoutPrefKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"config": ""})
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"config": config})
}

func (s *Server) handlePreferencesPut(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var body struct {
		Config string `json:"config"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if err := s.store.SetUserPref(r.Context(), p.UID, dashboardLayoutPrefKey, body.Config); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
