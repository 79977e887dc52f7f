package auth

import (
	"context"

	"github.com/jrsteele09/oauth-lite/authcodes"
	"github.com/jrsteele09/oauth-lite/clients"
	"github.com/jrsteele09/oauth-lite/grants"
	"github.com/jrsteele09/oauth-lite/sessions"
	"github.com/jrsteele09/oauth-lite/store"
	"github.com/jrsteele09/oauth-lite/token"
	"github.com/jrsteele09/oauth-lite/users"
)

// Authorizer mints and redeems one-time authorization codes.
type Authorizer interface {
	Authorize(ctx context.Context, g grants.Grant) (string, error)
	Extract(ctx context.Context, code string) (*grants.Grant, error)
}

// Issuer mints, looks up, rotates and revokes access/refresh pairs.
type Issuer interface {
	Issue(ctx context.Context, g grants.Grant) (token.IssuedToken, error)
	RecoverToken(ctx context.Context, access string) (*grants.Grant, error)
	RecoverRefresh(ctx context.Context, refresh string) (*grants.Grant, error)
	Refresh(ctx context.Context, refresh string) (token.IssuedToken, error)
	Revoke(ctx context.Context, value string) (bool, error)
}

type GrantStore interface {
	Put(ctx context.Context, g grants.Grant) error
	Get(ctx context.Context, ownerID string) (*grants.Grant, error)
}

type SessionStore interface {
	New(ctx context.Context) (*sessions.Session, error)
	Get(ctx context.Context, id string) (*sessions.Session, error)
	Save(ctx context.Context, session *sessions.Session) error
	CookieValue(session *sessions.Session) (string, error)
	ParseCookie(ctx context.Context, value string) (*sessions.Session, error)
}

var (
	_ Authorizer   = (*authcodes.Registry)(nil)
	_ Issuer       = (*token.Registry)(nil)
	_ GrantStore   = (*grants.Registry)(nil)
	_ SessionStore = (*sessions.Store)(nil)
)

// Repos holds all dependencies of the AuthorizationService. Store is the
// database the registries share; the token flow runs its registry calls in one
// of its transactions.
type Repos struct {
	Store    store.Store
	Clients  clients.Registrar
	Codes    Authorizer
	Tokens   Issuer
	Grants   GrantStore
	Sessions SessionStore
	Users    users.Authenticator
}
