package service

import "errors"

// Sentinel errors surfaced across the service boundary. The HTTP layer maps
// these onto status codes and error_code strings.
var (
	// ErrAlreadyTaken means the accept race was lost: another worker holds
	// the trip.
	ErrAlreadyTaken = errors.New("trip already taken")

	// ErrNotFound covers missing trips, sessions, and workers.
	ErrNotFound = errors.New("not found")

	// ErrWorkerNotEligible means the caller may not act on this trip: not
	// approved, not the assignee, or wrong worker kind.
	ErrWorkerNotEligible = errors.New("worker not eligible")

	// ErrWrongState means the trip is not in a state that permits the
	// requested operation.
	ErrWrongState = errors.New("operation not allowed in current trip state")

	// ErrValidation covers malformed input.
	ErrValidation = errors.New("validation failed")
)
