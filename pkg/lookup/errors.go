package lookup

import (
	"errors"
	"fmt"

	"places-cache/pkg/places"
)

// Lookup errors. Provider-side sentinels are shared with package places so
// callers can match either.
var (
	// ErrInvalidInput is returned for missing or malformed request fields
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooManyRequested is returned when a details batch exceeds MaxBatchSize
	ErrTooManyRequested = errors.New("too many place ids requested")

	// ErrLocationRequired is returned when a filter request has no location
	ErrLocationRequired = errors.New("location is required")

	// ErrConfig is returned when no provider credential is configured
	ErrConfig = places.ErrNoCredential

	// ErrProvider is wrapped by every non-OK provider answer
	ErrProvider = places.ErrProvider

	// ErrNetwork is wrapped by transport failures reaching the provider
	ErrNetwork = places.ErrNetwork
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
