package model

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationNotFound means geocoding produced no usable coordinate.
	ErrLocationNotFound = errors.New("location not found")

	// ErrBackendUnavailable means the spatial backend failed after all retries.
	ErrBackendUnavailable = errors.New("spatial backend unavailable")

	// ErrNoResultsInArea is informational: the query succeeded but nothing named was found.
	ErrNoResultsInArea = errors.New("no businesses found in this area; try widening the search radius")
)

// LocationNotFoundError is returned by the geocode resolver when every
// attempt came back empty or the backend could not be reached.
type LocationNotFoundError struct {
	Query    string
	Attempts []string
	Err      error // last backend error, nil when the backend simply had no match
}

func (e *LocationNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not find coordinates for %q: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("could not find coordinates for %q", e.Query)
}

func (e *LocationNotFoundError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrLocationNotFound.
func (e *LocationNotFoundError) Is(target error) bool { return target == ErrLocationNotFound }

// BackendUnavailableError carries the last error seen after the spatial
// query exhausted its retries.
type BackendUnavailableError struct {
	Attempts int
	Err      error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("failed to get business data after %d attempts: %v", e.Attempts, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrBackendUnavailable.
func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }
