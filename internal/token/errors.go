package token

import "fmt"

type ErrorCode string

const (
	ErrCodeInvalidToken ErrorCode = "invalid_token"
	ErrCodeExpiredToken ErrorCode = "expired_token"
	ErrCodeKeyNotFound  ErrorCode = "key_not_found"
	ErrCodeSigning      ErrorCode = "signing"
)

// TokenError represents a structured error from the token package
type TokenError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *TokenError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *TokenError) Code() ErrorCode { return e.code }
func (e *TokenError) Unwrap() error   { return e.wrapped }

// NewInvalidTokenError creates an error for a token that is malformed or
// whose signature does not verify.
func NewInvalidTokenError(msg string) error {
	return &TokenError{code: ErrCodeInvalidToken, message: msg}
}

// WrapInvalidTokenError wraps an existing error as an invalid token error.
func WrapInvalidTokenError(err error, msg string) error {
	return &TokenError{code: ErrCodeInvalidToken, message: msg, wrapped: err}
}

// NewExpiredTokenError creates an error for a token outside its validity
// window (including leeway).
func NewExpiredTokenError(msg string) error {
	return &TokenError{code: ErrCodeExpiredToken, message: msg}
}

// NewKeyNotFoundError creates an error for a kid that no resolver knows.
func NewKeyNotFoundError(msg string) error {
	return &TokenError{code: ErrCodeKeyNotFound, message: msg}
}

// WrapKeyNotFoundError wraps an existing error as a key not found error.
func WrapKeyNotFoundError(err error, msg string) error {
	return &TokenError{code: ErrCodeKeyNotFound, message: msg, wrapped: err}
}

// WrapSigningError wraps an existing error as a signing error.
func WrapSigningError(err error, msg string) error {
	return &TokenError{code: ErrCodeSigning, message: msg, wrapped: err}
}
