package web

import (
	"net/http"

	"github.com/fsae-team/daqserver/internal/store"
)

func (s *Server) handleSensorsList(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.store.ListSensors(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

func (s *Server) handleSensorsCreate(w http.ResponseWriter, r *http.Request) {
	var sn store.Sensor
	if err := decodeJSON(r, &sn); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if sn.SensorID == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "sensor_id is required")
		return
	}
	if err := s.store.UpsertSensor(r.Context(), sn); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

func (s *Server) handleSensorsUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var sn store.Sensor
	if err := decodeJSON(r, &sn); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	sn.SensorID = id
	if err := s.store.UpsertSensor(r.Context(), sn); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (s *Server) handleSensorsDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteSensor(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
