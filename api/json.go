package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/philtim/figured/app"
	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
	"github.com/philtim/figured/geonames"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type failureResponse struct {
	Error  string     `json:"error"`
	Notice app.Notice `json:"notice"`
}

// writeFailure reports a rejected mutation together with its user notice.
func writeFailure(w http.ResponseWriter, err error, n app.Notice) {
	writeJSON(w, statusFor(err), failureResponse{Error: err.Error(), Notice: n})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var zerr *cards.ZoneResolutionError
	switch {
	case errors.Is(err, cards.ErrCardNotFound), errors.Is(err, geonames.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, cards.ErrCannotRemoveHome):
		return http.StatusConflict
	case errors.As(err, &zerr), errors.Is(err, clock.ErrInvalidZoneID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cards.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, geonames.ErrReferenceDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
