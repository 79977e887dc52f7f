package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the registries and the protocol engine
// wraps exactly one of these so callers can classify with errors.Is.
var (
	// ErrService covers I/O, serialization and configuration failures (5xx).
	ErrService = errors.New("service error")
	// ErrAuthentication covers bad credentials, signature mismatches and
	// unknown or expired codes and tokens (401/403, never 5xx).
	ErrAuthentication = errors.New("authentication error")
	// ErrRegistration covers unknown clients, redirect mismatches and scope
	// rejections (400 or an error redirect).
	ErrRegistration = errors.New("registration error")
)

var (
	// Authentication errors
	ErrInvalidCredentials = kind(ErrAuthentication, "invalid credentials")
	ErrSignatureMismatch  = kind(ErrAuthentication, "signature mismatch")
	ErrMalformedCookie    = kind(ErrAuthentication, "malformed session cookie")
	ErrInvalidCode        = kind(ErrAuthentication, "invalid authorization code")
	ErrInvalidToken       = kind(ErrAuthentication, "invalid access token")
	ErrInvalidRefresh     = kind(ErrAuthentication, "invalid refresh token")
	ErrGrantMismatch      = kind(ErrAuthentication, "grant does not belong to client")
	ErrLoginThrottled     = kind(ErrAuthentication, "too many login attempts")
	ErrSessionNotFound    = kind(ErrAuthentication, "session not found")

	// Registration errors
	ErrUnknownClient       = kind(ErrRegistration, "unknown client")
	ErrInvalidClientSecret = kind(ErrRegistration, "invalid client secret")
	ErrRedirectMismatch    = kind(ErrRegistration, "redirect uri mismatch")
	ErrInvalidScope        = kind(ErrRegistration, "scope not granted")
	ErrInvalidResponseType = kind(ErrRegistration, "unsupported response type")
	ErrInvalidGrantType    = kind(ErrRegistration, "unsupported grant type")
	ErrInvalidRequest      = kind(ErrRegistration, "invalid request")

	// Service errors
	ErrGrantNotFound = kind(ErrService, "grant not found")
	ErrStoreClosed   = kind(ErrService, "store closed")
	ErrReadOnlyTx    = kind(ErrService, "write in read-only transaction")
	ErrUpstream      = kind(ErrService, "authentication backend unavailable")
)

func kind(k error, msg string) error {
	return fmt.Errorf("%w: %s", k, msg)
}

// Service marks err as a service error unless it is already classified.
func Service(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrService, err)
}

// IsClassified reports whether err wraps one of the three error kinds.
func IsClassified(err error) bool {
	return errors.Is(err, ErrService) || errors.Is(err, ErrAuthentication) || errors.Is(err, ErrRegistration)
}
