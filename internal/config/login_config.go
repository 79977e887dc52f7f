package config

import (
	"sort"
	"time"
)

const (
	LoginBackendEnvVar  = "LOGIN_BACKEND"
	LDAPURLEnvVar       = "LDAP_URL"
	LDAPBindDNEnvVar    = "LDAP_BIND_DN"
	LDAPUserDNEnvVar    = "LDAP_USER_DN"
	LDAPAttributesVar   = "LDAP_ATTRIBUTES"
	UpstreamIssuerVar   = "UPSTREAM_ISSUER"
	UpstreamClientIDVar = "UPSTREAM_CLIENT_ID"
	UpstreamSecretVar   = "UPSTREAM_CLIENT_SECRET"
)

const (
	LoginBackendLDAP     = "ldap"
	LoginBackendStatic   = "static"
	LoginBackendUpstream = "upstream"
)

type LoginConfig interface {
	GetLoginBackend() string
	GetLDAP() LDAPConfig
	GetStaticUsers() []StaticUser
	GetUpstream() UpstreamConfig
}

type LDAPConfig struct {
	URL        string
	BindDN     string
	UserDN     string
	Attributes []string
	Timeout    time.Duration
}

type StaticUser struct {
	Username     string
	PasswordHash string
	Attributes   map[string][]string
}

type UpstreamConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

type Login struct{ src *source }

var _ LoginConfig = Login{}

func (l Login) GetLoginBackend() string {
	return l.src.lookup(LoginBackendEnvVar, l.src.file.Login.Backend, LoginBackendLDAP)
}

func (l Login) GetLDAP() LDAPConfig {
	f := l.src.file.Login.LDAP
	attrs := f.Attributes
	if v := l.src.lookup(LDAPAttributesVar, "", ""); v != "" {
		attrs = splitList(v)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return LDAPConfig{
		URL:        l.src.lookup(LDAPURLEnvVar, f.URL, "ldap://localhost:389"),
		BindDN:     l.src.lookup(LDAPBindDNEnvVar, f.BindDN, "ou=users,dc=example,dc=com"),
		UserDN:     l.src.lookup(LDAPUserDNEnvVar, f.UserDN, "cn"),
		Attributes: attrs,
		Timeout:    timeout,
	}
}

func (l Login) GetStaticUsers() []StaticUser {
	users := make([]StaticUser, 0, len(l.src.file.Login.Users))
	for name, u := range l.src.file.Login.Users {
		users = append(users, StaticUser{Username: name, PasswordHash: u.PasswordHash, Attributes: u.Attributes})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

func (l Login) GetUpstream() UpstreamConfig {
	f := l.src.file.Login.Upstream
	scopes := f.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return UpstreamConfig{
		Issuer:       l.src.lookup(UpstreamIssuerVar, f.Issuer, ""),
		ClientID:     l.src.lookup(UpstreamClientIDVar, f.ClientID, ""),
		ClientSecret: l.src.lookup(UpstreamSecretVar, f.ClientSecret, ""),
		Scopes:       scopes,
		Timeout:      timeout,
	}
}
