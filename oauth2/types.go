package oauth2

// ResponseType represents the OAuth 2.0 response type requested at the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType selects the authorization code flow, the only flow
	// this server implements.
	CodeResponseType ResponseType = "code"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token. The
	// refresh token itself is kept.
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// ErrorCode is an RFC 6749 error code, sent either as the "error" member of a
// JSON error body or as the "error" query parameter of a redirect.
type ErrorCode string

const (
	ErrorInvalidRequest          ErrorCode = "invalid_request"
	ErrorInvalidClient           ErrorCode = "invalid_client"
	ErrorInvalidGrant            ErrorCode = "invalid_grant"
	ErrorInvalidScope            ErrorCode = "invalid_scope"
	ErrorInvalidToken            ErrorCode = "invalid_token"
	ErrorUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrorUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrorUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrorAccessDenied            ErrorCode = "access_denied"
	ErrorServerError             ErrorCode = "server_error"
)
