package credstore

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist, has
	// been superseded, or its retention window has passed.
	ErrNotFound = errors.New("credential record not found")
	// ErrAlreadyConsumed is returned when a one-time code was already used.
	ErrAlreadyConsumed = errors.New("one-time code already consumed")
	// ErrDeactivated is returned when mutating a deactivated API key.
	ErrDeactivated = errors.New("api key deactivated")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("credential store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("credential record corrupt")
)
