package clients

import (
	"crypto/subtle"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/oauth-lite/internal/config"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

// Registrar validates client identity, redirect URI and scope.
type Registrar interface {
	ResolveRedirect(clientID, requestedURI string) (BoundClient, error)
	Negotiate(bound BoundClient, requestedScope string) (PreGrant, error)
	Check(clientID, credential string) error
}

// Registry holds the registered clients behind a single mutex. Clients are
// registered at startup and never change afterwards.
type Registry struct {
	lock    sync.Mutex
	clients map[string]Client
}

var _ Registrar = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// NewRegistryFromConfig registers every configured client.
func NewRegistryFromConfig(configured []config.ClientConfig) (*Registry, error) {
	r := NewRegistry()
	for _, c := range configured {
		clientType := ClientTypePublic
		if c.Secret != "" {
			clientType = ClientTypeConfidential
		}
		err := r.Register(Client{
			ID:          c.ID,
			Type:        clientType,
			RedirectURI: c.RedirectURI,
			Scope:       c.Scope,
			Secret:      c.Secret,
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(client Client) error {
	if client.ID == "" || client.RedirectURI == "" {
		return errors.Errorf("[Registry.Register] client %q needs an id and a redirect uri", client.ID)
	}
	if client.Type == "" {
		client.Type = ClientTypePublic
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.clients[client.ID]; exists {
		return errors.Errorf("[Registry.Register] client %q already registered", client.ID)
	}
	r.clients[client.ID] = client
	return nil
}

// Get returns a copy of the registered client.
func (r *Registry) Get(clientID string) (Client, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// ResolveRedirect binds a request to the registered redirect URI. An empty
// requested URI selects the registered one; anything else must match exactly.
func (r *Registry) ResolveRedirect(clientID, requestedURI string) (BoundClient, error) {
	c, ok := r.Get(clientID)
	if !ok {
		return BoundClient{}, errors.Wrapf(serrors.ErrUnknownClient, "[Registry.ResolveRedirect] %q", clientID)
	}
	if requestedURI != "" && requestedURI != c.RedirectURI {
		return BoundClient{}, errors.Wrapf(serrors.ErrRedirectMismatch, "[Registry.ResolveRedirect] %q", clientID)
	}
	return BoundClient{ClientID: c.ID, RedirectURI: c.RedirectURI}, nil
}

// Negotiate rejects scopes the client was not registered with and grants the
// registered scope otherwise.
func (r *Registry) Negotiate(bound BoundClient, requestedScope string) (PreGrant, error) {
	c, ok := r.Get(bound.ClientID)
	if !ok {
		return PreGrant{}, errors.Wrapf(serrors.ErrUnknownClient, "[Registry.Negotiate] %q", bound.ClientID)
	}
	if err := c.ValidateScopes(requestedScope); err != nil {
		return PreGrant{}, errors.Wrapf(err, "[Registry.Negotiate] %q requested %q", c.ID, requestedScope)
	}
	return PreGrant{ClientID: c.ID, RedirectURI: bound.RedirectURI, Scope: c.Scope}, nil
}

// Check authenticates a client. Public clients pass without a credential.
func (r *Registry) Check(clientID, credential string) error {
	c, ok := r.Get(clientID)
	if !ok {
		return errors.Wrapf(serrors.ErrUnknownClient, "[Registry.Check] %q", clientID)
	}
	if c.IsPublic() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(credential)) != 1 {
		return errors.Wrapf(serrors.ErrInvalidClientSecret, "[Registry.Check] %q", clientID)
	}
	return nil
}
