package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredential is returned before any provider call when no API key is configured
	ErrNoCredential = errors.New("places: provider credential not configured")

	// ErrProvider is wrapped by every *StatusError
	ErrProvider = errors.New("places: provider error")

	// ErrNetwork is returned when the provider cannot be reached
	ErrNetwork = errors.New("places: network error")
)

// StatusError reports a provider answer other than OK (or a non-2xx HTTP status).
type StatusError struct {
	Operation  string
	Status     string
	Message    string
	HTTPStatus int
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("places: %s returned status %s", e.Operation, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrProvider) hold.
func (e *StatusError) Unwrap() error {
	return ErrProvider
}

// StatusOf returns the provider status carried by err, or "".
func StatusOf(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return ""
}

// IsNotFound reports whether the provider said the place does not exist.
func IsNotFound(err error) bool {
	switch StatusOf(err) {
	case StatusNotFound, StatusInvalidRequest:
		return true
	}
	return false
}

// providerHealthy decides whether a call outcome counts as healthy for the
// circuit breaker. A provider that answers, even with NOT_FOUND, is up.
func providerHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, ErrNetwork) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.HTTPStatus < http.StatusInternalServerError && se.Status != StatusUnknownError
	}
	return false
}
