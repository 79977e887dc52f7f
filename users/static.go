package users

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/oauth-lite/internal/config"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

// StaticAuthenticator checks logins against bcrypt hashes from configuration.
type StaticAuthenticator struct {
	users map[string]config.StaticUser
	// dummyHash is compared for unknown users so both paths cost a bcrypt check.
	dummyHash string
}

var _ Authenticator = (*StaticAuthenticator)(nil)

func NewStaticAuthenticator(users []config.StaticUser) (*StaticAuthenticator, error) {
	byName := make(map[string]config.StaticUser, len(users))
	for _, u := range users {
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			return nil, errors.Errorf("[NewStaticAuthenticator] user %q has no bcrypt password hash", u.Username)
		}
		byName[u.Username] = u
	}
	dummy, err := HashPassword("not-a-real-password")
	if err != nil {
		return nil, errors.Wrap(err, "[NewStaticAuthenticator] hashing")
	}
	return &StaticAuthenticator{users: byName, dummyHash: dummy}, nil
}

func (a *StaticAuthenticator) Login(_ context.Context, username, password string) (*User, error) {
	u, ok := a.users[username]
	if !ok {
		CheckPasswordHash(password, a.dummyHash)
		return nil, serrors.ErrInvalidCredentials
	}
	if password == "" || !CheckPasswordHash(password, u.PasswordHash) {
		return nil, serrors.ErrInvalidCredentials
	}
	return &User{Username: username, Attributes: AttributesFromMap(u.Attributes)}, nil
}
