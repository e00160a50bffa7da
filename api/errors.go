package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/heyvard/helse-spanner/spleis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responds with the standard error shape. The correlation id
// goes in error_id so a user report can be matched to the logs; the message
// never carries person identifiers or token material.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		ErrorID: correlationID(r.Context()),
		Error:   msg,
	})
}

func mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, spleis.ErrPersonNotFound):
		writeError(w, r, http.StatusNotFound, "person not found")
	case errors.Is(err, spleis.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "person lookup unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
