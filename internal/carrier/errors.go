package carrier

import (
	"errors"
	"fmt"
)

// Code is the canonical error taxonomy at the carrier-client boundary.
// Raw carrier errors never cross a service boundary; they are translated
// here first.
type Code string

const (
	CodeAuthInvalid         Code = "AUTH_INVALID"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeProviderUnreachable Code = "PROVIDER_UNREACHABLE"
	CodeProviderError       Code = "PROVIDER_ERROR"
)

// Error is the only error type carrier adapters return.
type Error struct {
	Carrier    string
	Code       Code
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Carrier, e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Carrier, e.Code, e.Message)
}

// CodeOf extracts the canonical code, defaulting to PROVIDER_ERROR for
// anything that is not a carrier error.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeProviderError
}

// IsGone reports whether err is the carrier telling us a resource does not
// exist. Cascading deletes tolerate this.
func IsGone(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.HTTPStatus == 404
}

// codeFromStatus maps an HTTP response status to the canonical taxonomy.
func codeFromStatus(status int) Code {
	switch {
	case status == 401 || status == 403:
		return CodeAuthInvalid
	case status == 429:
		return CodeRateLimited
	case status >= 400 && status < 500:
		return CodeValidationError
	default:
		return CodeProviderError
	}
}

func newError(carrier string, status int, message string) *Error {
	return &Error{Carrier: carrier, Code: codeFromStatus(status), HTTPStatus: status, Message: message}
}

func unreachable(carrier string, err error) *Error {
	return &Error{Carrier: carrier, Code: CodeProviderUnreachable, Message: err.Error()}
}
