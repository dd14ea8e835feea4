package onboarding

import (
	"errors"
	"net/http"

	"telephony-orchestrator/internal/carrier"
	"telephony-orchestrator/internal/sipbridge"
)

var (
	ErrUnknownCarrier      = errors.New("onboarding: unknown carrier")
	ErrIntegrationNotFound = errors.New("onboarding: integration not found")
	ErrBindingNotFound     = errors.New("onboarding: binding not found")

	// ErrIntegrationDisabled rejects list/connect against a disabled
	// integration.
	ErrIntegrationDisabled = errors.New("onboarding: integration is disabled")

	// ErrNumberMismatch: the caller-supplied e164 does not match the
	// carrier's own record for the provider number id. Nothing is mutated.
	ErrNumberMismatch = errors.New("onboarding: e164 does not match carrier record")

	// ErrNumberAlreadyBound enforces at most one enabled binding per DID.
	ErrNumberAlreadyBound = errors.New("onboarding: number already has an enabled binding")

	// ErrCredentialsUnreadable means the sealed credentials no longer
	// decrypt - the sealing key rotated underneath the integration, which
	// must be re-created.
	ErrCredentialsUnreadable = errors.New("onboarding: stored credentials cannot be decrypted")
)

// HTTPStatus maps a service error to the management-API status code.
// Carrier taxonomy: AUTH_INVALID 401, RATE_LIMITED 429, VALIDATION_ERROR 422,
// PROVIDER_UNREACHABLE / PROVIDER_ERROR 502.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownCarrier),
		errors.Is(err, ErrIntegrationNotFound),
		errors.Is(err, ErrBindingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIntegrationDisabled),
		errors.Is(err, ErrNumberMismatch),
		errors.Is(err, sipbridge.ErrBadNumber):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNumberAlreadyBound),
		errors.Is(err, ErrCredentialsUnreadable):
		return http.StatusConflict
	case errors.Is(err, sipbridge.ErrProvisioning):
		return http.StatusBadGateway
	}

	var ce *carrier.Error
	if errors.As(err, &ce) {
		switch ce.Code {
		case carrier.CodeAuthInvalid:
			return http.StatusUnauthorized
		case carrier.CodeRateLimited:
			return http.StatusTooManyRequests
		case carrier.CodeValidationError:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
