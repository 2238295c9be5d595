package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a category of failure across the import pipeline,
// storage engine, and HTTP surface.
type ErrorCode string

const (
	// URL / validation
	ErrURLRequired        ErrorCode = "URL_REQUIRED"
	ErrURLEmpty           ErrorCode = "URL_EMPTY"
	ErrURLInvalid         ErrorCode = "URL_INVALID"
	ErrURLInvalidProtocol ErrorCode = "URL_INVALID_PROTOCOL"
	ErrURLNoHostname      ErrorCode = "URL_NO_HOSTNAME"
	ErrValidationFailed   ErrorCode = "VALIDATION_FAILED"

	// Safety
	ErrSSRFBlocked ErrorCode = "SSRF_BLOCKED"

	// Extraction
	ErrExtractionFailed       ErrorCode = "EXTRACTION_FAILED"
	ErrParsingError           ErrorCode = "PARSING_ERROR"
	ErrUnsupportedContentType ErrorCode = "UNSUPPORTED_CONTENT_TYPE"
	ErrContentNotFound        ErrorCode = "CONTENT_NOT_FOUND"
	ErrContentTooLarge        ErrorCode = "CONTENT_TOO_LARGE"

	// Auth
	ErrInvalidAPIKey ErrorCode = "INVALID_API_KEY"
	ErrAPIKeyMissing ErrorCode = "API_KEY_MISSING"
	ErrUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrForbidden     ErrorCode = "FORBIDDEN"

	// Transport
	ErrNetworkTimeout    ErrorCode = "NETWORK_TIMEOUT"
	ErrFetchFailed       ErrorCode = "FETCH_FAILED"
	ErrRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Storage
	ErrDuplicateURL  ErrorCode = "DUPLICATE_URL"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrDatabaseError ErrorCode = "DATABASE_ERROR"

	// LLM
	ErrLLMEmptyResponse ErrorCode = "LLM_EMPTY_RESPONSE"
	ErrLLMParseError    ErrorCode = "LLM_PARSE_ERROR"
	ErrLLMSchemaError   ErrorCode = "LLM_SCHEMA_ERROR"

	// Circuit breaker
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// Internal
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is the coded error carried through the pipeline. Recoverable errors
// downgrade a pipeline step (extraction falls back, classification uses
// defaults); non-recoverable errors short-circuit the request.
type Error struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
	RetryAfter  int // seconds, set for RATE_LIMIT_EXCEEDED
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a non-recoverable coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewRecoverableError creates an error the pipeline may downgrade instead of
// aborting on.
func NewRecoverableError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: true}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// CodeOf extracts the ErrorCode from an error chain. Unknown errors map to
// INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsRecoverable reports whether an error chain carries a recoverable coded
// error. Unknown errors are treated as non-recoverable.
func IsRecoverable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// httpStatusByCode maps the error taxonomy to HTTP status codes.
var httpStatusByCode = map[ErrorCode]int{
	ErrURLRequired:        http.StatusBadRequest,
	ErrURLEmpty:           http.StatusBadRequest,
	ErrURLInvalid:         http.StatusBadRequest,
	ErrURLInvalidProtocol: http.StatusBadRequest,
	ErrURLNoHostname:      http.StatusBadRequest,
	ErrValidationFailed:   http.StatusBadRequest,
	ErrExtractionFailed:   http.StatusBadRequest,
	ErrParsingError:       http.StatusBadRequest,

	ErrUnauthorized:  http.StatusUnauthorized,
	ErrInvalidAPIKey: http.StatusUnauthorized,

	ErrSSRFBlocked: http.StatusForbidden,
	ErrForbidden:   http.StatusForbidden,

	ErrNotFound:        http.StatusNotFound,
	ErrContentNotFound: http.StatusNotFound,

	ErrNetworkTimeout: http.StatusRequestTimeout,

	ErrConflict:     http.StatusConflict,
	ErrDuplicateURL: http.StatusConflict,

	ErrContentTooLarge: http.StatusRequestEntityTooLarge,

	ErrRateLimitExceeded: http.StatusTooManyRequests,

	ErrUnsupportedContentType: http.StatusBadRequest,

	ErrInternal:         http.StatusInternalServerError,
	ErrDatabaseError:    http.StatusInternalServerError,
	ErrLLMEmptyResponse: http.StatusInternalServerError,
	ErrLLMParseError:    http.StatusInternalServerError,
	ErrLLMSchemaError:   http.StatusInternalServerError,

	ErrFetchFailed: http.StatusBadGateway,

	ErrAPIKeyMissing: http.StatusServiceUnavailable,
	ErrCircuitOpen:   http.StatusServiceUnavailable,
}

// HTTPStatus returns the HTTP status for a coded error.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
