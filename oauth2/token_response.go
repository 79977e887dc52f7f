package oauth2

// TokenResponse is the body of a successful /token or /refresh call.
type TokenResponse struct {
	// AccessToken is an opaque bearer credential. Send it as
	// "Authorization: Bearer <access_token>".
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the remaining lifetime of the access token in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// Expires is the absolute expiry of the access token as a unix timestamp.
	Expires int64 `json:"expires,omitempty"`

	// RefreshToken obtains a new access token from /refresh. It is not
	// rotated; the same value keeps working until revoked.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space separated scope granted to the client.
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of a rejected token, refresh or resource call.
type ErrorResponse struct {
	Error       ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

// GrantSummary is what the resource endpoint reveals about the grant behind a
// valid access token.
type GrantSummary struct {
	OwnerID     string `json:"owner_id"`
	ClientID    string `json:"client_id"`
	Scope       string `json:"scope"`
	RedirectURI string `json:"redirect_uri"`
	Until       int64  `json:"until"`
}
