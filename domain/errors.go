package domain

import "errors"

// Failure taxonomy. Callers match with errors.Is; constructors wrap these
// sentinels with fmt.Errorf and %w to add context.
var (
	// ErrNotFound marks a missing character or metadata; recoverable, callers
	// fall back to defaults.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument marks input rejected before any I/O, such as an
	// empty character name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied marks an attempt to remove the default character.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBackendUnavailable marks a network or connection failure against a
	// backend.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrGenerationFailed marks a backend that was reachable but returned no
	// usable payload.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrStorageFailure marks a read or write error against persisted state.
	ErrStorageFailure = errors.New("storage failure")
)
