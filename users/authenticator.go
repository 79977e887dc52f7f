package users

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/oauth-lite/internal/config"
)

// Authenticator checks a username and password against an identity backend.
// A rejected login returns an error wrapping ErrInvalidCredentials; a backend
// failure returns a service error.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*User, error)
}

// New builds the authenticator selected by the login backend setting.
func New(ctx context.Context, c config.LoginConfig) (Authenticator, error) {
	switch backend := c.GetLoginBackend(); backend {
	case config.LoginBackendLDAP:
		return NewLDAPAuthenticator(c.GetLDAP()), nil
	case config.LoginBackendStatic:
		return NewStaticAuthenticator(c.GetStaticUsers())
	case config.LoginBackendUpstream:
		return NewUpstreamAuthenticator(ctx, c.GetUpstream())
	default:
		return nil, errors.Errorf("[users.New] unknown login backend %q", backend)
	}
}
