package web

import (
	"net/http"

	"github.com/fsae-team/daqserver/internal/store"
)

func (s *Server) handleSerialConfigGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetSerialConfig(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSerialConfigPut(w http.ResponseWriter, r *http.Request) {
	var cfg store.SerialConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if err := s.store.SetSerialConfig(r.Context(), cfg); err != nil {
		writeErr(w, err)
		return
	}
	if s.serial != nil {
		s.serial.NotifyConfigChanged()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSerialSourcePut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	switch body.Source {
	case "auto", "serial", "simulated":
	default:
		writeDetail(w, http.StatusUnprocessableEntity, "source must be one of auto, serial, simulated")
		return
	}
	if err := s.store.SetSourcePreference(r.Context(), body.Source); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSerialRestart forces the serial reader to close and reopen its
// port, picking up the latest SerialConfig immediately.
func (s *Server) handleSerialRestart(w http.ResponseWriter, r *http.Request) {
	if s.serial != nil {
		s.serial.NotifyConfigChanged()
	}
	w.WriteHeader(http.StatusNoContent)
}
