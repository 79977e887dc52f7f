package clients

import (
	"strings"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Holds a secret (server-side apps)
	ClientTypePublic       ClientType = "public"       // No credential (SPAs, reverse proxies)
)

// Client is a statically registered OAuth client. RedirectURI and Scope never
// change after registration.
type Client struct {
	ID          string     `json:"id"`
	Type        ClientType `json:"type"`
	RedirectURI string     `json:"redirect_uri"`
	Scope       string     `json:"scope"`
	Secret      string     `json:"-"`
}

// BoundClient is a client paired with the redirect URI a request is allowed
// to use.
type BoundClient struct {
	ClientID    string
	RedirectURI string
}

// PreGrant is the outcome of negotiating a request against a client: what the
// resource owner is asked to approve.
type PreGrant struct {
	ClientID    string
	RedirectURI string
	Scope       string
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range SplitScopes(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks that every requested scope is covered by the client's
// registered scope.
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return serrors.ErrInvalidScope
		}
	}
	return nil
}

// SplitScopes splits a space separated scope string.
func SplitScopes(scopes string) []string {
	return strings.Fields(scopes)
}
