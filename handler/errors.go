package handler

import (
	"errors"
	"net/http"
)

// ErrNilResponse indicates a handler returned nil instead of a Response
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError represents an HTTP error with status code and a stable error key.
// The key is what API clients switch on; the status text is the message.
type HTTPError struct {
	Code int    // HTTP status code
	Key  string // e.g. "not_found", "payment_required"
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return e.Key
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrPaymentRequired     = HTTPError{Code: http.StatusPaymentRequired, Key: "payment_required"}
	ErrForbidden           = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessableEntity = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrUnsupportedMedia    = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}

	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// statusError pairs an HTTPError with the underlying cause so the cause
// stays visible to logging while clients only see the key.
type statusError struct {
	HTTPError
	cause error
}

func (e statusError) Error() string { return e.Key + ": " + e.cause.Error() }

func (e statusError) Unwrap() []error { return []error{e.HTTPError, e.cause} }

// WithCause attaches err to an HTTPError. errors.As still finds the HTTPError.
func WithCause(httpErr HTTPError, err error) error {
	if err == nil {
		return httpErr
	}
	return statusError{HTTPError: httpErr, cause: err}
}
