package config

import (
	"sort"
	"strings"
	"time"
)

const ClientIDsEnvVar = "OAUTH_CLIENT_IDS"

// DefaultClientScope is granted to clients registered without a scope.
const DefaultClientScope = "default"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetCodeGenerationLength() int
	GetAccessTokenLength() int
	GetRefreshTokenLength() int
	GetSessionIDLength() int
	GetDefaultAccessTokenExpiry() time.Duration
	GetClients() []ClientConfig
}

// ClientConfig is one statically registered client.
type ClientConfig struct {
	ID          string
	RedirectURI string
	Scope       string
	Secret      string
}

type OAuth struct{ src *source }

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return time.Hour
}

func (OAuth) GetCodeGenerationLength() int {
	return 32
}

func (OAuth) GetAccessTokenLength() int {
	return 32
}

func (OAuth) GetRefreshTokenLength() int {
	return 32
}

func (OAuth) GetSessionIDLength() int {
	return 32
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return time.Hour
}

// GetClients merges clients from the file with OAUTH_CLIENT_IDS ("id=url,...").
// Environment entries replace file entries with the same id.
func (o OAuth) GetClients() []ClientConfig {
	byID := make(map[string]ClientConfig)
	for id, c := range o.src.file.OAuth.Clients {
		byID[id] = ClientConfig{ID: id, RedirectURI: c.URL, Scope: c.Scope, Secret: c.Secret}
	}
	for _, pair := range splitList(o.src.lookup(ClientIDsEnvVar, "", "")) {
		id, url, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			continue
		}
		byID[id] = ClientConfig{ID: id, RedirectURI: url}
	}

	clients := make([]ClientConfig, 0, len(byID))
	for _, c := range byID {
		if c.Scope == "" {
			c.Scope = DefaultClientScope
		}
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}
