package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/oauth-lite/clients"
	"github.com/jrsteele09/oauth-lite/grants"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/internal/utils"
	"github.com/jrsteele09/oauth-lite/oauth2"
	"github.com/jrsteele09/oauth-lite/sessions"
	"github.com/jrsteele09/oauth-lite/store"
	"github.com/jrsteele09/oauth-lite/token"
)

const (
	DefaultLoginPath     = "/login"
	DefaultGrantLifetime = time.Hour

	authorizePath = "/authorize"
)

// AuthorizationService executes the OAuth2 flows against the registries. Every
// call resolves the browser session from the request's cookie, holds it for
// the length of the call and returns a response carrying the re-signed cookie.
type AuthorizationService struct {
	repos         Repos
	validator     *Validator
	locker        *sessions.Locker
	metrics       *Metrics
	nowTime       func() time.Time
	strictCookies bool
	loginPath     string
	grantLifetime time.Duration
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithStrictSessionCookies controls whether a cookie failing verification is
// rejected with 403 (the default) or replaced with a new session.
func WithStrictSessionCookies(strict bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.strictCookies = strict
	}
}

// WithLoginPath sets where unauthenticated authorization requests are sent.
func WithLoginPath(path string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if path != "" {
			as.loginPath = path
		}
	}
}

func WithMetrics(m *Metrics) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = m
	}
}

// WithGrantLifetime sets the informational expiry recorded on new grants.
func WithGrantLifetime(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if d > 0 {
			as.grantLifetime = d
		}
	}
}

// WithLocker shares a session locker between several services.
func WithLocker(l *sessions.Locker) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if l != nil {
			as.locker = l
		}
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewAuthorizationService(repos Repos, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Store == nil {
		return nil, errors.New("[NewAuthorizationService] Store is required")
	}
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients registrar is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes authorizer is required")
	}
	if repos.Tokens == nil {
		return nil, errors.New("[NewAuthorizationService] Tokens issuer is required")
	}
	if repos.Grants == nil {
		return nil, errors.New("[NewAuthorizationService] Grants store is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions store is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users authenticator is required")
	}

	authService := &AuthorizationService{
		repos:         repos,
		validator:     NewValidator(),
		locker:        sessions.NewLocker(),
		nowTime:       time.Now,
		strictCookies: true,
		loginPath:     DefaultLoginPath,
		grantLifetime: DefaultGrantLifetime,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// flowFunc runs one flow with the session held. It maps authentication and
// registration failures to responses itself and returns only service errors.
type flowFunc func(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error)

func (as *AuthorizationService) run(ctx context.Context, flow string, req *oauth2.Request, fn flowFunc) (*oauth2.Response, error) {
	h, denied, err := as.openSession(ctx, req)
	if err != nil {
		as.metrics.flow(flow, outcomeError)
		return nil, errors.Wrapf(err, "[AuthorizationService.%s] resolving session", flow)
	}
	if denied != nil {
		as.metrics.flow(flow, outcomeDenied)
		return denied, nil
	}
	defer h.release()

	resp, result, err := fn(ctx, h, req)
	if err != nil {
		as.metrics.flow(flow, outcomeError)
		return nil, errors.Wrapf(err, "[AuthorizationService.%s]", flow)
	}
	as.metrics.flow(flow, result)

	if err := h.commit(ctx, resp, as.nowTime()); err != nil {
		return nil, errors.Wrapf(err, "[AuthorizationService.%s] saving session", flow)
	}
	return resp, nil
}

// Authorize handles GET and POST /authorize.
func (as *AuthorizationService) Authorize(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowAuthorize, req, as.authorize)
}

// Token handles POST /token for the authorization_code and refresh_token grants.
func (as *AuthorizationService) Token(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowToken, req, as.token)
}

// Refresh handles POST /refresh.
func (as *AuthorizationService) Refresh(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowRefresh, req, as.refresh)
}

// Revoke handles POST /revoke.
func (as *AuthorizationService) Revoke(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowRevoke, req, as.revoke)
}

// Resource handles GET /resource.
func (as *AuthorizationService) Resource(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowResource, req, as.resource)
}

// Authenticate handles GET /authenticate.
func (as *AuthorizationService) Authenticate(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowAuthenticate, req, as.authenticate)
}

// Index handles GET /.
func (as *AuthorizationService) Index(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error) {
	return as.run(ctx, flowIndex, req, as.index)
}

func (as *AuthorizationService) authorize(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	params := oauth2.ParseAuthorizationParameters(req)

	// Until the redirect URI is verified nothing may be sent to it.
	bound, err := as.repos.Clients.ResolveRedirect(params.ClientID, params.RedirectURI)
	if err != nil {
		if !errors.Is(err, serrors.ErrRegistration) {
			return nil, "", err
		}
		log.Warn().Err(err).Str("client_id", params.ClientID).Msg("authorization request rejected")
		return oauth2.Text(http.StatusBadRequest, "invalid client or redirect uri"), outcomeRejected, nil
	}

	preGrant, err := as.negotiate(bound, params)
	if err != nil {
		code, ok := redirectErrorCode(err)
		if !ok {
			return nil, "", err
		}
		log.Warn().Err(err).Str("client_id", params.ClientID).Msg("authorization request rejected")
		resp, err := as.redirect(bound.RedirectURI, url.Values{"error": {string(code)}}, params.State)
		return resp, outcomeRejected, err
	}

	if !h.session.LoggedIn() {
		resp, err := as.solicit(ctx, h, req)
		if err != nil || resp != nil {
			return resp, outcomeLogin, err
		}
	}

	g := grants.Grant{
		OwnerID:     h.session.ID,
		ClientID:    preGrant.ClientID,
		Scope:       preGrant.Scope,
		RedirectURI: preGrant.RedirectURI,
		Until:       as.nowTime().Add(as.grantLifetime),
	}
	var code string
	err = as.repos.Store.Update(ctx, func(tx store.Tx) error {
		txCtx := store.WithTx(ctx, tx)
		var err error
		if code, err = as.repos.Codes.Authorize(txCtx, g); err != nil {
			return err
		}
		return as.repos.Grants.Put(txCtx, g)
	})
	if err != nil {
		return nil, "", err
	}
	log.Info().Str("client_id", g.ClientID).Str("username", h.session.User.Username).Msg("authorization code issued")

	resp, err := as.redirect(g.RedirectURI, url.Values{"code": {code}}, params.State)
	return resp, outcomeOK, err
}

func (as *AuthorizationService) negotiate(bound clients.BoundClient, params oauth2.AuthorizationParameters) (clients.PreGrant, error) {
	if err := as.validator.ValidateAuthorizationRequest(params); err != nil {
		return clients.PreGrant{}, err
	}
	return as.repos.Clients.Negotiate(bound, params.Scope)
}

// solicit logs the session in with the credentials posted to /authorize. It
// returns a login redirect when none were posted or they were rejected, and
// nil once the session is logged in. The session lock is not held while the
// login backend is called.
func (as *AuthorizationService) solicit(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, error) {
	creds, ok := oauth2.ParseCredentials(req)
	if !ok {
		return as.loginRedirect(req), nil
	}

	h.release()
	user, loginErr := as.repos.Users.Login(ctx, creds.Login, creds.Password)
	if err := h.reacquire(ctx); err != nil {
		return nil, err
	}

	if loginErr != nil {
		if !errors.Is(loginErr, serrors.ErrAuthentication) {
			as.metrics.login(outcomeError)
			return nil, loginErr
		}
		log.Warn().Err(loginErr).Str("username", creds.Login).Msg("login attempt failed")
		as.metrics.login(outcomeDenied)
		return as.loginRedirect(req), nil
	}
	as.metrics.login(outcomeOK)

	h.session.User = user
	if err := h.store.Save(ctx, h.session); err != nil {
		return nil, err
	}
	log.Info().Str("username", user.Username).Msg("user logged in")
	return nil, nil
}

// loginRedirect sends the browser to the login page with the authorization
// query intact so the form can post it back.
func (as *AuthorizationService) loginRedirect(req *oauth2.Request) *oauth2.Response {
	location := as.loginPath
	if len(req.Query) > 0 {
		location += "?" + req.Query.Encode()
	}
	return oauth2.Redirect(http.StatusSeeOther, location)
}

func (as *AuthorizationService) redirect(uri string, params url.Values, state string) (*oauth2.Response, error) {
	if state != "" {
		params.Set("state", state)
	}
	location, err := oauth2.AppendQuery(uri, params)
	if err != nil {
		return nil, serrors.Service(errors.Wrapf(err, "redirect uri %q", uri))
	}
	return oauth2.Redirect(http.StatusFound, location), nil
}

func (as *AuthorizationService) token(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	params := oauth2.ParseTokenRequest(req)
	if params.GrantType == oauth2.RefreshTokenGrant {
		resp, err := as.rotate(ctx, params)
		return as.tokenResult(flowToken, params, resp, err)
	}
	resp, err := as.exchange(ctx, params)
	return as.tokenResult(flowToken, params, resp, err)
}

func (as *AuthorizationService) refresh(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	params := oauth2.ParseTokenRequest(req)
	if params.GrantType == "" {
		params.GrantType = oauth2.RefreshTokenGrant
	}
	var resp *oauth2.Response
	err := errors.Wrapf(serrors.ErrInvalidGrantType, "grant_type %q at refresh endpoint", params.GrantType)
	if params.GrantType == oauth2.RefreshTokenGrant {
		resp, err = as.rotate(ctx, params)
	}
	return as.tokenResult(flowRefresh, params, resp, err)
}

// exchange redeems an authorization code for a new token pair. Consuming the
// code and issuing the pair commit together or not at all.
func (as *AuthorizationService) exchange(ctx context.Context, params oauth2.TokenRequest) (*oauth2.Response, error) {
	if err := as.validator.ValidateTokenRequest(params); err != nil {
		return nil, err
	}
	if err := as.repos.Clients.Check(params.ClientID, params.ClientSecret); err != nil {
		return nil, err
	}

	var g *grants.Grant
	var issued token.IssuedToken
	err := as.repos.Store.Update(ctx, func(tx store.Tx) error {
		txCtx := store.WithTx(ctx, tx)
		var err error
		g, err = as.repos.Codes.Extract(txCtx, params.Code)
		if err != nil {
			return err
		}
		if g.ClientID != params.ClientID {
			return errors.Wrapf(serrors.ErrGrantMismatch, "code issued to %q", g.ClientID)
		}
		if params.RedirectURI != "" && params.RedirectURI != g.RedirectURI {
			return errors.Wrap(serrors.ErrGrantMismatch, "redirect_uri differs from authorization request")
		}
		issued, err = as.repos.Tokens.Issue(txCtx, *g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return as.tokenResponse(issued, g.Scope)
}

// rotate replaces the access token paired with a refresh token. A request
// without client_id is authenticated as the client the token was issued to.
func (as *AuthorizationService) rotate(ctx context.Context, params oauth2.TokenRequest) (*oauth2.Response, error) {
	if err := as.validator.ValidateTokenRequest(params); err != nil {
		return nil, err
	}
	if params.ClientID != "" {
		if err := as.repos.Clients.Check(params.ClientID, params.ClientSecret); err != nil {
			return nil, err
		}
	}

	var g *grants.Grant
	var issued token.IssuedToken
	err := as.repos.Store.Update(ctx, func(tx store.Tx) error {
		txCtx := store.WithTx(ctx, tx)
		var err error
		g, err = as.repos.Tokens.RecoverRefresh(txCtx, params.RefreshToken)
		if err != nil {
			return err
		}
		if params.ClientID != "" && g.ClientID != params.ClientID {
			return errors.Wrapf(serrors.ErrGrantMismatch, "refresh token issued to %q", g.ClientID)
		}
		issued, err = as.repos.Tokens.Refresh(txCtx, params.RefreshToken)
		return err
	})
	if err != nil {
		return nil, err
	}
	return as.tokenResponse(issued, g.Scope)
}

func (as *AuthorizationService) tokenResponse(issued token.IssuedToken, scope string) (*oauth2.Response, error) {
	resp, err := oauth2.JSON(http.StatusOK, oauth2.TokenResponse{
		AccessToken:  utils.Ptr(issued.AccessToken),
		TokenType:    oauth2.TokenTypeBearer,
		ExpiresIn:    int(issued.Until.Sub(as.nowTime()) / time.Second),
		Expires:      issued.Until.Unix(),
		RefreshToken: utils.Ptr(issued.RefreshToken),
		Scope:        scope,
	})
	return resp, serrors.Service(err)
}

func (as *AuthorizationService) tokenResult(flow string, params oauth2.TokenRequest, resp *oauth2.Response, err error) (*oauth2.Response, string, error) {
	if err == nil {
		log.Info().Str("flow", flow).Str("client_id", params.ClientID).Msg("tokens issued")
		return resp, outcomeOK, nil
	}
	mapped, serviceErr := tokenErrorResponse(err)
	if serviceErr != nil {
		return nil, "", serviceErr
	}
	log.Warn().Err(err).Str("flow", flow).Str("client_id", params.ClientID).Msg("token request rejected")
	return mapped, outcome(err), nil
}

func (as *AuthorizationService) revoke(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	params := oauth2.ParseRevocationRequest(req)
	revoked, err := as.withdraw(ctx, params)
	if err == nil {
		log.Info().Str("client_id", params.ClientID).Bool("revoked", revoked).Msg("revocation accepted")
		return &oauth2.Response{Status: http.StatusOK}, outcomeOK, nil
	}
	mapped, serviceErr := tokenErrorResponse(err)
	if serviceErr != nil {
		return nil, "", serviceErr
	}
	log.Warn().Err(err).Str("client_id", params.ClientID).Msg("revocation rejected")
	return mapped, outcome(err), nil
}

// withdraw removes the pair holding params.Token. A token that is unknown or
// already expired is not an error, but one issued to another client is.
func (as *AuthorizationService) withdraw(ctx context.Context, params oauth2.RevocationRequest) (bool, error) {
	if params.Token == "" {
		return false, errors.Wrap(serrors.ErrInvalidRequest, "token is required")
	}
	if params.ClientID == "" {
		return false, errors.Wrap(serrors.ErrUnknownClient, "client authentication is required")
	}
	if err := as.repos.Clients.Check(params.ClientID, params.ClientSecret); err != nil {
		return false, err
	}

	var revoked bool
	err := as.repos.Store.Update(ctx, func(tx store.Tx) error {
		txCtx := store.WithTx(ctx, tx)
		g, err := as.tokenGrant(txCtx, params.Token, params.TokenTypeHint)
		if errors.Is(err, serrors.ErrInvalidToken) || errors.Is(err, serrors.ErrInvalidRefresh) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.ClientID != params.ClientID {
			return errors.Wrapf(serrors.ErrGrantMismatch, "token issued to %q", g.ClientID)
		}
		revoked, err = as.repos.Tokens.Revoke(txCtx, params.Token)
		return err
	})
	return revoked, err
}

// tokenGrant resolves value as a refresh token and then as an access token,
// or the other way round when hint says it is an access token.
func (as *AuthorizationService) tokenGrant(ctx context.Context, value, hint string) (*grants.Grant, error) {
	lookups := []func(context.Context, string) (*grants.Grant, error){as.repos.Tokens.RecoverRefresh, as.repos.Tokens.RecoverToken}
	if hint == "access_token" {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	g, err := lookups[0](ctx, value)
	if errors.Is(err, serrors.ErrInvalidToken) || errors.Is(err, serrors.ErrInvalidRefresh) {
		return lookups[1](ctx, value)
	}
	return g, err
}

func (as *AuthorizationService) resource(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	g, err := as.recoverBearer(ctx, req)
	if err != nil {
		if !errors.Is(err, serrors.ErrAuthentication) {
			return nil, "", err
		}
		return unauthorized(req), outcomeDenied, nil
	}
	resp, err := oauth2.JSON(http.StatusOK, oauth2.GrantSummary{
		OwnerID:     g.OwnerID,
		ClientID:    g.ClientID,
		Scope:       g.Scope,
		RedirectURI: g.RedirectURI,
		Until:       g.Until.Unix(),
	})
	return resp, outcomeOK, serrors.Service(err)
}

func (as *AuthorizationService) index(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	if _, err := as.recoverBearer(ctx, req); err != nil {
		if !errors.Is(err, serrors.ErrAuthentication) {
			return nil, "", err
		}
		return oauth2.Text(http.StatusOK, "Not Authorized"), outcomeDenied, nil
	}
	return oauth2.Text(http.StatusOK, "Authorized"), outcomeOK, nil
}

func (as *AuthorizationService) recoverBearer(ctx context.Context, req *oauth2.Request) (*grants.Grant, error) {
	bearer := req.BearerToken()
	if bearer == "" {
		return nil, serrors.ErrInvalidToken
	}
	return as.repos.Tokens.RecoverToken(ctx, bearer)
}

func unauthorized(req *oauth2.Request) *oauth2.Response {
	resp := oauth2.Error(http.StatusUnauthorized, oauth2.ErrorInvalidToken, "")
	resp.WWWAuthenticate = `Bearer realm="oauth"`
	if req.BearerToken() != "" {
		resp.WWWAuthenticate += `, error="invalid_token"`
	}
	return resp
}

func (as *AuthorizationService) authenticate(ctx context.Context, h *sessionHandle, req *oauth2.Request) (*oauth2.Response, string, error) {
	if h.session.LoggedIn() {
		return oauth2.Text(http.StatusOK, "Authenticated as "+h.session.User.Username), outcomeOK, nil
	}

	if code := req.Query.Get("code"); code != "" {
		resp, err := as.handOff(ctx, h, code, req.Query.Get("client_id"), req.Query.Get("client_secret"))
		if err == nil {
			return resp, outcomeOK, nil
		}
		if !errors.Is(err, serrors.ErrAuthentication) && !errors.Is(err, serrors.ErrRegistration) {
			return nil, "", err
		}
		log.Warn().Err(err).Msg("authentication code rejected")
		return oauth2.Text(http.StatusForbidden, "authentication failed"), outcomeDenied, nil
	}

	if req.Query.Get("client_id") != "" {
		return oauth2.Redirect(http.StatusFound, authorizePath+"?"+req.Query.Encode()), outcomeLogin, nil
	}
	return oauth2.Text(http.StatusForbidden, "authentication failed"), outcomeDenied, nil
}

// handOff redeems a code and logs the session in as the user the code was
// issued to, then sends the browser to the grant's redirect URI. The caller
// must name the client the code was issued to and authenticate as it.
func (as *AuthorizationService) handOff(ctx context.Context, h *sessionHandle, code, clientID, secret string) (*oauth2.Response, error) {
	if clientID == "" {
		return nil, errors.Wrap(serrors.ErrInvalidRequest, "client_id is required")
	}
	if err := as.repos.Clients.Check(clientID, secret); err != nil {
		return nil, err
	}

	var g *grants.Grant
	var owner *sessions.Session
	err := as.repos.Store.Update(ctx, func(tx store.Tx) error {
		txCtx := store.WithTx(ctx, tx)
		var err error
		g, err = as.repos.Codes.Extract(txCtx, code)
		if err != nil {
			return err
		}
		if clientID != "" && g.ClientID != clientID {
			return errors.Wrapf(serrors.ErrGrantMismatch, "code issued to %q", g.ClientID)
		}
		owner, err = as.repos.Sessions.Get(txCtx, g.OwnerID)
		if err != nil {
			return err
		}
		if !owner.LoggedIn() {
			return errors.Wrap(serrors.ErrInvalidCode, "code owner is not logged in")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.session.User = owner.User
	log.Info().Str("username", owner.User.Username).Str("client_id", g.ClientID).Msg("session authenticated by code")
	return oauth2.Redirect(http.StatusFound, g.RedirectURI), nil
}
