package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"marquee/services/metadata"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusForFetchError maps a lookup error to the status of the JSON API.
func statusForFetchError(err error) int {
	if errors.Is(err, metadata.ErrTitleIDRequired) || errors.Is(err, metadata.ErrInvalidTitleID) {
		return http.StatusBadRequest
	}
	var httpErr *metadata.HTTPError
	if errors.As(err, &httpErr) && httpErr.NotFound() {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
