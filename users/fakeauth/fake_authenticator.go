package fakeauth

import (
	"context"
	"sync"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/users"
)

var _ users.Authenticator = (*FakeAuthenticator)(nil)

// FakeAuthenticator accepts a fixed set of username/password pairs.
type FakeAuthenticator struct {
	lock      sync.Mutex
	passwords map[string]string
	attrs     map[string][]users.Attribute
	calls     []string
	// BeforeLogin, when set, runs at the start of every Login call.
	BeforeLogin func(username string)
	// Err, when set, is returned by every Login call.
	Err error
}

func NewFakeAuthenticator() *FakeAuthenticator {
	return &FakeAuthenticator{
		passwords: make(map[string]string),
		attrs:     make(map[string][]users.Attribute),
	}
}

func (f *FakeAuthenticator) AddUser(username, password string, attrs ...users.Attribute) *FakeAuthenticator {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.passwords[username] = password
	f.attrs[username] = attrs
	return f
}

func (f *FakeAuthenticator) Login(_ context.Context, username, password string) (*users.User, error) {
	if f.BeforeLogin != nil {
		f.BeforeLogin(username)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, username)
	if f.Err != nil {
		return nil, f.Err
	}
	expected, ok := f.passwords[username]
	if !ok || expected != password {
		return nil, serrors.ErrInvalidCredentials
	}
	return &users.User{Username: username, Attributes: f.attrs[username]}, nil
}

// Calls returns the usernames Login was called with.
func (f *FakeAuthenticator) Calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.calls...)
}
