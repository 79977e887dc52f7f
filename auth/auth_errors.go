package auth

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/oauth2"
)

// tokenErrorResponse turns a failed token or refresh call into an RFC 6749
// error body. Service errors are returned unchanged.
func tokenErrorResponse(err error) (*oauth2.Response, error) {
	switch {
	case errors.Is(err, serrors.ErrUnknownClient), errors.Is(err, serrors.ErrInvalidClientSecret):
		resp := oauth2.Error(http.StatusUnauthorized, oauth2.ErrorInvalidClient, "client authentication failed")
		resp.WWWAuthenticate = `Basic realm="oauth"`
		return resp, nil
	case errors.Is(err, serrors.ErrInvalidGrantType):
		return oauth2.Error(http.StatusBadRequest, oauth2.ErrorUnsupportedGrantType, ""), nil
	case errors.Is(err, serrors.ErrInvalidRequest):
		return oauth2.Error(http.StatusBadRequest, oauth2.ErrorInvalidRequest, describe(err)), nil
	case errors.Is(err, serrors.ErrAuthentication):
		return oauth2.Error(http.StatusBadRequest, oauth2.ErrorInvalidGrant, ""), nil
	case errors.Is(err, serrors.ErrRegistration):
		return oauth2.Error(http.StatusBadRequest, oauth2.ErrorInvalidRequest, ""), nil
	}
	return nil, err
}

// redirectErrorCode maps an authorization failure that may be reported to
// the client's verified redirect URI.
func redirectErrorCode(err error) (oauth2.ErrorCode, bool) {
	switch {
	case errors.Is(err, serrors.ErrInvalidResponseType):
		return oauth2.ErrorUnsupportedResponseType, true
	case errors.Is(err, serrors.ErrInvalidScope):
		return oauth2.ErrorInvalidScope, true
	case errors.Is(err, serrors.ErrInvalidRequest):
		return oauth2.ErrorInvalidRequest, true
	case errors.Is(err, serrors.ErrRegistration):
		return oauth2.ErrorUnauthorizedClient, true
	}
	return "", false
}

// outcome names the result of a flow for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, serrors.ErrAuthentication):
		return outcomeDenied
	case errors.Is(err, serrors.ErrRegistration):
		return outcomeRejected
	}
	return outcomeError
}

// describe returns the detail a validation error was wrapped with.
func describe(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+serrors.ErrInvalidRequest.Error())
}
