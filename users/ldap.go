package users

import (
	"context"
	"fmt"
	"net"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/oauth-lite/internal/config"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

// LDAPConn is the part of *ldap.Conn the authenticator uses.
type LDAPConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type LDAPDialer func(ctx context.Context, cfg config.LDAPConfig) (LDAPConn, error)

// LDAPAuthenticator binds as "{user_dn}={username},{bind_dn}" and reads the
// configured attributes from that entry.
type LDAPAuthenticator struct {
	cfg  config.LDAPConfig
	dial LDAPDialer
}

var _ Authenticator = (*LDAPAuthenticator)(nil)

func NewLDAPAuthenticator(cfg config.LDAPConfig) *LDAPAuthenticator {
	return &LDAPAuthenticator{cfg: cfg, dial: dialLDAP}
}

// WithLDAPDialer replaces how connections are opened.
func (a *LDAPAuthenticator) WithLDAPDialer(dial LDAPDialer) *LDAPAuthenticator {
	a.dial = dial
	return a
}

func dialLDAP(ctx context.Context, cfg config.LDAPConfig) (LDAPConn, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := ldap.DialURL(cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(cfg.Timeout)
	return conn, nil
}

// UserDN builds the entry DN for username.
func (a *LDAPAuthenticator) UserDN(username string) string {
	return fmt.Sprintf("%s=%s,%s", a.cfg.UserDN, ldap.EscapeDN(username), a.cfg.BindDN)
}

func (a *LDAPAuthenticator) Login(ctx context.Context, username, password string) (*User, error) {
	// an empty password would be an unauthenticated bind, which servers accept
	if username == "" || password == "" {
		return nil, serrors.ErrInvalidCredentials
	}

	conn, err := a.dial(ctx, a.cfg)
	if err != nil {
		return nil, errors.Wrapf(serrors.ErrUpstream, "[LDAPAuthenticator.Login] dial %s: %v", a.cfg.URL, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("closing ldap connection")
		}
	}()

	dn := a.UserDN(username)
	if err := conn.Bind(dn, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, errors.Wrapf(serrors.ErrUpstream, "[LDAPAuthenticator.Login] bind: %v", err)
	}

	user := &User{Username: username}
	if len(a.cfg.Attributes) == 0 {
		return user, nil
	}

	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)", a.cfg.Attributes, nil)
	res, err := conn.Search(req)
	if err != nil {
		return nil, errors.Wrapf(serrors.ErrUpstream, "[LDAPAuthenticator.Login] search: %v", err)
	}
	if len(res.Entries) == 0 {
		return user, nil
	}

	wanted := make(map[string]struct{}, len(a.cfg.Attributes))
	for _, name := range a.cfg.Attributes {
		wanted[name] = struct{}{}
	}
	for _, attr := range res.Entries[0].Attributes {
		if _, ok := wanted[attr.Name]; !ok {
			continue
		}
		user.Attributes = append(user.Attributes, Attribute{Name: attr.Name, Values: attr.Values})
	}
	return user, nil
}
