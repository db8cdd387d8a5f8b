package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures surfaced to redeeming clients.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindAuthentication ErrorKind = "authentication"
	KindMaintenance    ErrorKind = "maintenance"
	KindValidation     ErrorKind = "validation"
	KindAuthorization  ErrorKind = "authorization"
	KindState          ErrorKind = "state"
	KindRateLimited    ErrorKind = "rate_limited"
	KindInternal       ErrorKind = "internal"
)

// Client-facing reason strings. These are part of the wire contract.
const (
	ReasonSuccess          = "Successful"
	ReasonKeyNotRegistered = "Key not Register"
	ReasonDeviceLimit      = "Device limit reached"
	ReasonKeyExpired       = "Key expired"
	ReasonKeyDisabled      = "Key is disabled"
	ReasonInvalidAPIKey    = "Invalid API key"
	ReasonUserNotFound     = "User not found"
	ReasonInvalidPayload   = "Invalid payload"
	ReasonInternal         = "Internal server error"
	ReasonTooManyRequests  = "Too many requests"
	ReasonServerOff        = "Server is off by your panel owner"
	ReasonBalance          = "Insufficient balance"
	DefaultMaintenanceText = "Panel is under maintenance"
)

// Error is a classified failure. Reason is safe to return to clients; Err is not.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Reason + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// NewError returns a classified error with a client-facing reason.
func NewError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Internal wraps an unexpected failure. The cause is never shown to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Reason: ReasonInternal, Err: err}
}

// AsError extracts a *Error from err, converting unknown errors to Internal.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return Internal(err)
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindMaintenance:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization, KindState:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
