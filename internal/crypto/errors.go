package crypto

import "fmt"

// Error represents a structured error from the crypto package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeUnsupportedScheme ErrorCode = "unsupported_scheme"
	ErrCodeInvalidParameter  ErrorCode = "invalid_parameter"
	ErrCodeDecryption        ErrorCode = "decryption"
	ErrCodeSignature         ErrorCode = "signature"
	ErrCodeKeyManagement     ErrorCode = "key_management"
	ErrCodeInternal          ErrorCode = "internal"
)

// CryptoError represents a structured error from the crypto package
type CryptoError struct {

	// code is the crypto error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CryptoError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CryptoError) Code() ErrorCode { return e.code }
func (e *CryptoError) Unwrap() error   { return e.wrapped }

// NewUnsupportedSchemeError creates an error for an unknown envelope scheme
// name at encrypt or decrypt time.
//
// The returned error will have code ErrCodeUnsupportedScheme.
func NewUnsupportedSchemeError(msg string) error {
	return &CryptoError{code: ErrCodeUnsupportedScheme, message: msg}
}

// NewInvalidParameterError creates an error for a bad caller-supplied
// parameter (wrong IV length, nil key, empty plaintext).
//
// The returned error will have code ErrCodeInvalidParameter.
func NewInvalidParameterError(msg string) error {
	return &CryptoError{code: ErrCodeInvalidParameter, message: msg}
}

// NewDecryptionError creates a fail-closed decryption error.
// Use this for any padding, tag or cipher failure - the caller must never
// see partial plaintext.
//
// The returned error will have code ErrCodeDecryption.
func NewDecryptionError(msg string) error {
	return &CryptoError{code: ErrCodeDecryption, message: msg}
}

// WrapDecryptionError wraps an existing error as a decryption error.
//
// The returned error will have code ErrCodeDecryption.
func WrapDecryptionError(err error, msg string) error {
	return &CryptoError{code: ErrCodeDecryption, message: msg, wrapped: err}
}

// NewSignatureError creates a signature error.
// Use this only for genuinely unsupported key types - a signature that
// simply does not verify is reported as a boolean false, not an error.
//
// The returned error will have code ErrCodeSignature.
func NewSignatureError(msg string) error {
	return &CryptoError{code: ErrCodeSignature, message: msg}
}

// WrapSignatureError wraps an existing error as a signature error.
//
// The returned error will have code ErrCodeSignature.
func WrapSignatureError(err error, msg string) error {
	return &CryptoError{code: ErrCodeSignature, message: msg, wrapped: err}
}

// NewKeyManagementError creates a key management error.
// Use this for errors related to key loading, key not found,
// invalid key format, or JWK parsing failures.
//
// The returned error will have code ErrCodeKeyManagement.
func NewKeyManagementError(msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
//
// The returned error will have code ErrCodeKeyManagement.
func WrapKeyManagementError(err error, msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
// Use this for crypto library failures or system errors that should not
// normally occur.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg, wrapped: err}
}
