package credkit

import (
	"errors"
	"net/http"
)

// Kind classifies every failure returned by the Engine.
type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInvalidScope       Kind = "invalid_scope"
	KindInvalidInput       Kind = "invalid_input"
	KindExpired            Kind = "expired"
	KindMismatch           Kind = "mismatch"
	KindAlreadyConsumed    Kind = "already_consumed"
	KindAlreadyDeactivated Kind = "already_deactivated"
	KindTooManyRequests    Kind = "too_many_requests"
	KindDeliveryError      Kind = "delivery_error"
	KindStoreError         Kind = "store_error"
)

var (
	// ErrUnauthorized is returned when the call carries no authenticated identity
	// or a presented credential is invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller neither owns the target nor
	// holds an admin role.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the addressed code, key or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidScope is returned when a requested scope is not in the vocabulary.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExpired is returned for credentials past their expiry.
	ErrExpired = errors.New("expired")
	// ErrMismatch is returned when a submitted one-time code is wrong.
	ErrMismatch = errors.New("code mismatch")
	// ErrAlreadyConsumed is returned when a one-time code was already used.
	ErrAlreadyConsumed = errors.New("code already consumed")
	// ErrAlreadyDeactivated is returned when rotating a deactivated API key.
	ErrAlreadyDeactivated = errors.New("api key already deactivated")
	// ErrTooManyRequests is returned when a rate limit denies the call.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrDelivery is returned when the delivery channel could not send a code.
	ErrDelivery = errors.New("delivery failed")
	// ErrStore is returned when the credential store or counter store fails.
	ErrStore = errors.New("credential store failure")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var kindSentinels = map[Kind]error{
	KindUnauthorized:       ErrUnauthorized,
	KindForbidden:          ErrForbidden,
	KindNotFound:           ErrNotFound,
	KindInvalidScope:       ErrInvalidScope,
	KindInvalidInput:       ErrInvalidInput,
	KindExpired:            ErrExpired,
	KindMismatch:           ErrMismatch,
	KindAlreadyConsumed:    ErrAlreadyConsumed,
	KindAlreadyDeactivated: ErrAlreadyDeactivated,
	KindTooManyRequests:    ErrTooManyRequests,
	KindDeliveryError:      ErrDelivery,
	KindStoreError:         ErrStore,
}

// HTTPStatus maps k to the status code request handlers should return.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidScope, KindInvalidInput, KindMismatch:
		return http.StatusBadRequest
	case KindExpired:
		return http.StatusGone
	case KindAlreadyConsumed, KindAlreadyDeactivated:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindDeliveryError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured failure returned by Engine methods. Message is safe
// to show to callers; the underlying cause is kept for logging and never
// appears in Error().
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	cause error
	// audited is set once an activity event describing this failure was emitted.
	audited bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Cause returns the wrapped lower-level error, if any.
func (e *Error) Cause() error {
	return e.cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) withDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind carried by err, or "" when err is nil or not a
// credkit error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}
