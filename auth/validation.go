package auth

import (
	"strings"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/oauth2"
)

// Validator checks request parameters before any registry is consulted.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAuthorizationRequest checks the parameters that can be reported
// back to the client's redirect URI. The client and redirect URI themselves
// are checked by the client registry.
func (v *Validator) ValidateAuthorizationRequest(params oauth2.AuthorizationParameters) error {
	if params.ResponseType != oauth2.CodeResponseType {
		return errors.Wrapf(serrors.ErrInvalidResponseType, "response_type %q", params.ResponseType)
	}
	if err := ValidateScope(params.Scope); err != nil {
		return err
	}
	return nil
}

// ValidateTokenRequest checks that the fields a grant type needs are present.
func (v *Validator) ValidateTokenRequest(params oauth2.TokenRequest) error {
	switch params.GrantType {
	case oauth2.AuthorizationCodeGrant:
		if params.ClientID == "" {
			return errors.Wrap(serrors.ErrInvalidRequest, "client_id is required")
		}
		if params.Code == "" {
			return errors.Wrap(serrors.ErrInvalidRequest, "code is required")
		}
	case oauth2.RefreshTokenGrant:
		if params.RefreshToken == "" {
			return errors.Wrap(serrors.ErrInvalidRequest, "refresh_token is required")
		}
	case "":
		return errors.Wrap(serrors.ErrInvalidRequest, "grant_type is required")
	default:
		return errors.Wrapf(serrors.ErrInvalidGrantType, "grant_type %q", params.GrantType)
	}
	return nil
}

// ValidateScope rejects scope strings carrying control characters.
func ValidateScope(scope string) error {
	if strings.ContainsAny(scope, "\n\r\t\x00") {
		return errors.Wrap(serrors.ErrInvalidScope, "scope contains invalid characters")
	}
	return nil
}
