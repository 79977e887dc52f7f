package users

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/oauth-lite/internal/config"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/internal/utils"
)

// UpstreamAuthenticator delegates the password check to an external OpenID
// provider using the resource owner password grant, then verifies the
// returned id_token before trusting its claims.
type UpstreamAuthenticator struct {
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

var _ Authenticator = (*UpstreamAuthenticator)(nil)

// NewUpstreamAuthenticator discovers the provider at cfg.Issuer.
func NewUpstreamAuthenticator(ctx context.Context, cfg config.UpstreamConfig) (*UpstreamAuthenticator, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("[NewUpstreamAuthenticator] issuer and client id are required")
	}
	client := &http.Client{Timeout: cfg.Timeout}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewUpstreamAuthenticator] discovering %s", cfg.Issuer)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewUpstreamAuthenticatorWithVerifier(cfg, provider.Endpoint(), verifier, client), nil
}

// NewUpstreamAuthenticatorWithVerifier skips discovery.
func NewUpstreamAuthenticatorWithVerifier(cfg config.UpstreamConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, client *http.Client) *UpstreamAuthenticator {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &UpstreamAuthenticator{
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		verifier: verifier,
		client:   client,
	}
}

func (a *UpstreamAuthenticator) Login(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, serrors.ErrInvalidCredentials
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	tok, err := a.oauth2.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, errors.Wrapf(serrors.ErrUpstream, "[UpstreamAuthenticator.Login] token request: %v", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrap(serrors.ErrUpstream, "[UpstreamAuthenticator.Login] no id_token in response")
	}
	idToken, err := a.verifier.Verify(oidc.ClientContext(ctx, a.client), rawIDToken)
	if err != nil {
		return nil, errors.Wrapf(serrors.ErrUpstream, "[UpstreamAuthenticator.Login] verifying id_token: %v", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(serrors.ErrUpstream, "[UpstreamAuthenticator.Login] decoding claims: %v", err)
	}
	return &User{Username: username, Attributes: claimAttributes(claims)}, nil
}

// claimAttributes keeps string and string-list claims, dropping the
// registered JWT claims.
func claimAttributes(claims map[string]any) []Attribute {
	attrs := make(map[string][]string)
	for name, v := range claims {
		switch name {
		case "iss", "aud", "exp", "iat", "nbf", "azp", "nonce", "at_hash", "auth_time", "jti":
			continue
		}
		switch value := v.(type) {
		case string:
			attrs[name] = []string{value}
		case bool, float64:
			attrs[name] = []string{fmt.Sprint(value)}
		case []any:
			if values := utils.ToStringSlice(value); len(values) > 0 {
				attrs[name] = values
			}
		}
	}
	return AttributesFromMap(attrs)
}
