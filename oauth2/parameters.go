package oauth2

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// AuthorizationParameters holds the parameters of an authorization request.
// The login form posts back to /authorize with the original query intact, so
// they are read from the form first and the query second.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	ClientID string

	// ResponseType must be "code".
	ResponseType ResponseType

	// RedirectURI is optional. When sent it must equal the registered one.
	RedirectURI string

	// Scope is a space separated list that must be covered by the client's
	// registered scope.
	Scope string

	// State is echoed back untouched on the redirect.
	State string
}

func ParseAuthorizationParameters(req *Request) AuthorizationParameters {
	return AuthorizationParameters{
		ClientID:     req.Param("client_id"),
		ResponseType: ResponseType(req.Param("response_type")),
		RedirectURI:  req.Param("redirect_uri"),
		Scope:        req.Param("scope"),
		State:        req.Param("state"),
	}
}

// Credentials are the login form fields posted to /authorize.
type Credentials struct {
	Login    string
	Password string
}

// ParseCredentials reads credentials from the request body. ok is false when
// no login was submitted.
func ParseCredentials(req *Request) (Credentials, bool) {
	c := Credentials{
		Login:    strings.TrimSpace(req.Form.Get("login")),
		Password: req.Form.Get("password"),
	}
	return c, c.Login != ""
}

// TokenRequest holds the parameters of a /token or /refresh call.
type TokenRequest struct {
	GrantType GrantType

	// ClientID and ClientSecret come from the form or, when the form has no
	// client_id, from HTTP Basic authentication.
	ClientID     string
	ClientSecret string

	// Code is required for the authorization_code grant.
	Code string

	// RedirectURI, when sent, must match the one the code was issued for.
	RedirectURI string

	// RefreshToken is required for the refresh_token grant.
	RefreshToken string
}

func ParseTokenRequest(req *Request) TokenRequest {
	tr := TokenRequest{
		GrantType:    GrantType(req.Form.Get("grant_type")),
		ClientID:     req.Form.Get("client_id"),
		ClientSecret: req.Form.Get("client_secret"),
		Code:         req.Form.Get("code"),
		RedirectURI:  req.Form.Get("redirect_uri"),
		RefreshToken: req.Form.Get("refresh_token"),
	}
	if tr.ClientID == "" {
		tr.ClientID, tr.ClientSecret, _ = basicAuth(req.Authorization)
	}
	return tr
}

// RevocationRequest holds the parameters of an RFC 7009 /revoke call.
type RevocationRequest struct {
	// Token is the access or refresh token to revoke.
	Token string

	// TokenTypeHint is "access_token" or "refresh_token". It only decides
	// which kind is looked up first.
	TokenTypeHint string

	ClientID     string
	ClientSecret string
}

func ParseRevocationRequest(req *Request) RevocationRequest {
	rr := RevocationRequest{
		Token:         req.Form.Get("token"),
		TokenTypeHint: req.Form.Get("token_type_hint"),
		ClientID:      req.Form.Get("client_id"),
		ClientSecret:  req.Form.Get("client_secret"),
	}
	if rr.ClientID == "" {
		rr.ClientID, rr.ClientSecret, _ = basicAuth(req.Authorization)
	}
	return rr
}

func basicAuth(header string) (username, password string, ok bool) {
	scheme, encoded, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	// RFC 6749 2.3.1 form-encodes both halves before base64.
	if u, err := url.QueryUnescape(username); err == nil {
		username = u
	}
	if p, err := url.QueryUnescape(password); err == nil {
		password = p
	}
	return username, password, true
}
