package rate

import "errors"

var (
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidIdentifier is returned for identifiers with empty components.
	ErrInvalidIdentifier = errors.New("invalid rate limit identifier")
)
