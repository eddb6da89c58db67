package api

import (
	"errors"
	"net/http"

	"places-cache/pkg/lookup"
)

// errBadJSON is returned for request bodies that are not valid JSON.
var errBadJSON = errors.New("invalid JSON body")

// errCleanupUnavailable is returned by cleanup routes when no sweeper is configured.
var errCleanupUnavailable = errors.New("cleanup is not configured")

// StatusFor maps a lookup error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadJSON),
		errors.Is(err, lookup.ErrInvalidInput),
		errors.Is(err, lookup.ErrTooManyRequested),
		errors.Is(err, lookup.ErrLocationRequired):
		return http.StatusBadRequest
	case errors.Is(err, lookup.ErrNetwork):
		return http.StatusBadGateway
	default:
		// ErrConfig, ErrProvider and anything unexpected
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
