package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/fsae-team/daqserver/internal/store"
)

// detailEnvelope is the wire shape for every error response on the REST
// surface: {"detail": "<message>"}.
type detailEnvelope struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode error: %v", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailEnvelope{Detail: detail})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeErr maps a Store (or other domain) error to an HTTP status and
// writes the {"detail": ...} body, per the error-kind table.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeDetail(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrValidation):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrIntegrity):
		writeDetail(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

// parseLimitOffset extracts limit/offset query params with defaults and
// validation.
func parseLimitOffset(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, errBadQuery("limit must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errBadQuery("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

type errBadQuery string

func (e errBadQuery) Error() string { return string(e) }
