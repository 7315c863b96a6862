package constants

import "net/http"

// APIError represents a standardized API error with code, message, and HTTP status.
// Use these predefined errors for consistent API responses across the application.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// WithMessage returns a copy of the APIError with a custom message.
// Useful for validation errors or other dynamic messages.
func (e APIError) WithMessage(message string) APIError {
	return APIError{
		Code:    e.Code,
		Message: message,
		Status:  e.Status,
	}
}

// Common errors - shared across multiple modules
var (
	ErrInvalidRequestBody = APIError{
		Code:    CodeInvalidRequest,
		Message: MsgInvalidRequestBody,
		Status:  http.StatusBadRequest,
	}
	ErrInternalError = APIError{
		Code:    CodeInternalError,
		Message: MsgInternalError,
		Status:  http.StatusInternalServerError,
	}
)

// Shortener-specific errors
var (
	ErrInvalidURL = APIError{
		Code:    CodeInvalidURL,
		Message: MsgInvalidURL,
		Status:  http.StatusBadRequest,
	}
	ErrInvalidPolicy = APIError{
		Code:    CodeInvalidPolicy,
		Message: MsgInvalidPolicy,
		Status:  http.StatusBadRequest,
	}
	ErrInvalidWallet = APIError{
		Code:    CodeInvalidWallet,
		Message: MsgInvalidWallet,
		Status:  http.StatusBadRequest,
	}
	ErrLinkNotFound = APIError{
		Code:    CodeLinkNotFound,
		Message: MsgLinkNotFound,
		Status:  http.StatusNotFound,
	}
	ErrUnsafeURL = APIError{
		Code:    CodeUnsafeURL,
		Message: MsgUnsafeURL,
		Status:  http.StatusForbidden,
	}
	ErrCodeExhausted = APIError{
		Code:    CodeExhausted,
		Message: MsgExhausted,
		Status:  http.StatusInternalServerError,
	}
)

// Gate errors. Denial is a definitive policy outcome; verification failure is
// a transient upstream fault the caller may retry. They carry different codes
// and statuses so clients can tell the two apart.
var (
	ErrGateDenied = APIError{
		Code:    CodeGateDenied,
		Message: MsgGateDenied,
		Status:  http.StatusForbidden,
	}
	ErrVerificationFailed = APIError{
		Code:    CodeVerificationFailed,
		Message: MsgVerificationFailed,
		Status:  http.StatusInternalServerError,
	}
)
