package validation

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies orchestration failures; each code carries the HTTP
// status the boundary layer responds with.
type ErrorCode string

const (
	// ErrCodeAuth - missing, invalid, expired or replayed access token.
	ErrCodeAuth ErrorCode = "auth"

	// ErrCodeSessionGone - the subject's session is absent, expired or
	// already consumed.
	ErrCodeSessionGone ErrorCode = "session_gone"

	// ErrCodeNotFound - the polled resource does not exist.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeBadRequest - the request body is malformed.
	ErrCodeBadRequest ErrorCode = "bad_request"

	// ErrCodeCrypto - decryption or signature verification of the submitted
	// credential failed.
	ErrCodeCrypto ErrorCode = "crypto"

	// ErrCodeRequestTooLarge - the request body exceeds the configured limit.
	ErrCodeRequestTooLarge ErrorCode = "request_too_large"

	// ErrCodeRateLimited - the instance-wide request rate was exceeded.
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeInternal - unexpected failure; details are logged, not leaked.
	ErrCodeInternal ErrorCode = "internal"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeAuth:            http.StatusUnauthorized,
	ErrCodeSessionGone:     http.StatusGone,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeCrypto:          http.StatusUnprocessableEntity,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// Error is a classified orchestration failure.
type Error struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Code returns the error classification.
func (e *Error) Code() ErrorCode { return e.code }

// HTTPStatus returns the status the boundary layer maps this error to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message returns the client-safe description.
func (e *Error) Message() string { return e.message }

func newError(code ErrorCode, message string) *Error {
	return &Error{code: code, message: message}
}

// NewAuthError flags a missing or rejected bearer token.
func NewAuthError(message string) *Error {
	return newError(ErrCodeAuth, message)
}

// NewBadRequestError flags a malformed request body.
func NewBadRequestError(message string) *Error {
	return newError(ErrCodeBadRequest, message)
}

// NewRequestTooLargeError flags a request body over the size limit.
func NewRequestTooLargeError(message string) *Error {
	return newError(ErrCodeRequestTooLarge, message)
}

// NewRateLimitError flags a request rejected by the rate limiter.
func NewRateLimitError(message string) *Error {
	return newError(ErrCodeRateLimited, message)
}

// NewNotFoundError flags an absent resource.
func NewNotFoundError(message string) *Error {
	return newError(ErrCodeNotFound, message)
}

func wrapError(code ErrorCode, err error, message string) *Error {
	return &Error{code: code, message: message, wrapped: err}
}

// HTTPStatusFor maps any error to a response status: classified errors carry
// their own, everything else is an internal failure.
func HTTPStatusFor(err error) int {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
