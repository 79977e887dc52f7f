package auth_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/oauth-lite/auth"
	"github.com/jrsteele09/oauth-lite/authcodes"
	"github.com/jrsteele09/oauth-lite/clients"
	"github.com/jrsteele09/oauth-lite/grants"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/oauth2"
	"github.com/jrsteele09/oauth-lite/sessions"
	"github.com/jrsteele09/oauth-lite/signing"
	"github.com/jrsteele09/oauth-lite/store/memstore"
	"github.com/jrsteele09/oauth-lite/token"
	"github.com/jrsteele09/oauth-lite/users/fakeauth"
)

const (
	testClientID      = "webapp"
	testRedirectURI   = "https://app.example/cb"
	testBackendID     = "backend"
	testBackendSecret = "s3cret"
	testUsername      = "alice"
	testPassword      = "secret"
	testState         = "xyz"
)

// testFixture holds all test dependencies
type testFixture struct {
	db       *memstore.Store
	sessions *sessions.Store
	grants   *grants.Registry
	tokens   *token.Registry
	users    *fakeauth.FakeAuthenticator
	locker   *sessions.Locker
	registry *prometheus.Registry
	service  *auth.AuthorizationService
	now      time.Time
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...auth.AuthorizationServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{
		db:       memstore.New(),
		users:    fakeauth.NewFakeAuthenticator().AddUser(testUsername, testPassword),
		locker:   sessions.NewLocker(),
		registry: prometheus.NewRegistry(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.now }

	clientRegistry := clients.NewRegistry()
	require.NoError(t, clientRegistry.Register(clients.Client{ID: testClientID, RedirectURI: testRedirectURI, Scope: "default"}))
	require.NoError(t, clientRegistry.Register(clients.Client{
		ID:          testBackendID,
		Type:        clients.ClientTypeConfidential,
		RedirectURI: "https://backend.example/cb",
		Scope:       "read write",
		Secret:      testBackendSecret,
	}))

	f.sessions = sessions.NewStore(f.db, signing.NewHMACSigner([]byte("0123456789abcdef0123456789abcdef")), sessions.WithNowTime(now))
	f.grants = grants.NewRegistry(f.db)
	f.tokens = token.NewRegistry(f.db, f.grants, token.WithNowTime(now))

	opts := append([]auth.AuthorizationServiceOption{
		auth.WithNowTime(now),
		auth.WithLocker(f.locker),
		auth.WithMetrics(auth.NewMetrics(f.registry)),
	}, options...)
	service, err := auth.NewAuthorizationService(auth.Repos{
		Store:    f.db,
		Clients:  clientRegistry,
		Codes:    authcodes.NewRegistry(f.db, f.grants, authcodes.WithNowTime(now)),
		Tokens:   f.tokens,
		Grants:   f.grants,
		Sessions: f.sessions,
		Users:    f.users,
	}, opts...)
	require.NoError(t, err)
	f.service = service
	return f
}

func authorizeQuery(extra ...string) url.Values {
	q := url.Values{"client_id": {testClientID}, "response_type": {"code"}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

func sessionID(t *testing.T, cookie string) string {
	t.Helper()
	id, _, ok := strings.Cut(cookie, ".")
	require.True(t, ok)
	return id
}

// login runs the two step authorization of the login scenario and returns the
// issued code and the session cookie.
func (f *testFixture) login(t *testing.T) (code, cookie string) {
	t.Helper()
	return f.loginWith(t, authorizeQuery("state", testState))
}

// loginWith is login for an arbitrary authorization query.
func (f *testFixture) loginWith(t *testing.T, query url.Values) (code, cookie string) {
	t.Helper()
	ctx := context.Background()

	resp, err := f.service.Authorize(ctx, &oauth2.Request{Method: http.MethodGet, Query: query})
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, resp.Status)

	resp, err = f.service.Authorize(ctx, &oauth2.Request{
		Method: http.MethodPost,
		Query:  query,
		Form:   url.Values{"login": {testUsername}, "password": {testPassword}},
		Cookie: resp.Cookie,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)
	location, err := url.Parse(resp.Location)
	require.NoError(t, err)
	return location.Query().Get("code"), resp.Cookie
}

func (f *testFixture) exchange(t *testing.T, code string) oauth2.TokenResponse {
	t.Helper()
	return f.exchangeWith(t, url.Values{"code": {code}, "client_id": {testClientID}})
}

// exchangeWith redeems a code with the given form, adding the grant type.
func (f *testFixture) exchangeWith(t *testing.T, form url.Values) oauth2.TokenResponse {
	t.Helper()
	form.Set("grant_type", "authorization_code")
	resp, err := f.service.Token(context.Background(), &oauth2.Request{Method: http.MethodPost, Form: form})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var tr oauth2.TokenResponse
	require.NoError(t, json.Unmarshal(resp.Body, &tr))
	return tr
}

// loginBackend authorizes and redeems a code for the confidential client.
func (f *testFixture) loginBackend(t *testing.T) oauth2.TokenResponse {
	t.Helper()
	code, _ := f.loginWith(t, authorizeQuery("client_id", testBackendID))
	return f.exchangeWith(t, url.Values{"code": {code}, "client_id": {testBackendID}, "client_secret": {testBackendSecret}})
}

func basicAuth(clientID, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+secret))
}

func decodeError(t *testing.T, resp *oauth2.Response) oauth2.ErrorResponse {
	t.Helper()
	var body oauth2.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func TestNewAuthorizationServiceRequiresRepos(t *testing.T) {
	_, err := auth.NewAuthorizationService(auth.Repos{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Store is required")

	_, err = auth.NewAuthorizationService(auth.Repos{Store: memstore.New()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Clients registrar is required")
}

func TestAuthorizeLoginScenario(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	resp, err := f.service.Authorize(ctx, &oauth2.Request{Method: http.MethodGet, Query: authorizeQuery()})
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, resp.Status)
	require.Equal(t, "/login?client_id=webapp&response_type=code", resp.Location)
	require.NotEmpty(t, resp.Cookie)

	s1 := sessionID(t, resp.Cookie)
	stored, err := f.sessions.Get(ctx, s1)
	require.NoError(t, err)
	require.False(t, stored.LoggedIn())

	resp, err = f.service.Authorize(ctx, &oauth2.Request{
		Method: http.MethodPost,
		Query:  authorizeQuery(),
		Form:   url.Values{"login": {testUsername}, "password": {testPassword}},
		Cookie: resp.Cookie,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)
	require.True(t, strings.HasPrefix(resp.Location, testRedirectURI+"?"))
	location, err := url.Parse(resp.Location)
	require.NoError(t, err)
	require.NotEmpty(t, location.Query().Get("code"))

	// same session, re-signed
	require.Equal(t, s1, sessionID(t, resp.Cookie))
	stored, err = f.sessions.Get(ctx, s1)
	require.NoError(t, err)
	require.True(t, stored.LoggedIn())
	require.Equal(t, testUsername, stored.User.Username)

	g, err := f.grants.Get(ctx, s1)
	require.NoError(t, err)
	require.Equal(t, testClientID, g.ClientID)
	require.Equal(t, "default", g.Scope)
	require.Equal(t, testRedirectURI, g.RedirectURI)
	require.Equal(t, []string{testUsername}, f.users.Calls())
}

func TestAuthorizeLoggedInSessionSkipsLogin(t *testing.T) {
	f := setupTestFixture(t)
	_, cookie := f.login(t)

	resp, err := f.service.Authorize(context.Background(), &oauth2.Request{
		Method: http.MethodGet,
		Query:  authorizeQuery("state", testState),
		Cookie: cookie,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)
	location, err := url.Parse(resp.Location)
	require.NoError(t, err)
	require.NotEmpty(t, location.Query().Get("code"))
	require.Equal(t, testState, location.Query().Get("state"))
	require.Len(t, f.users.Calls(), 1)
}

func TestAuthorizeWrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	resp, err := f.service.Authorize(ctx, &oauth2.Request{
		Method: http.MethodPost,
		Query:  authorizeQuery(),
		Form:   url.Values{"login": {testUsername}, "password": {"wrong"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, resp.Status)
	require.True(t, strings.HasPrefix(resp.Location, auth.DefaultLoginPath+"?"))
	require.NotContains(t, resp.Location, "wrong")

	stored, err := f.sessions.Get(ctx, sessionID(t, resp.Cookie))
	require.NoError(t, err)
	require.False(t, stored.LoggedIn())
}

func TestAuthorizeBackendFailureIsServiceError(t *testing.T) {
	f := setupTestFixture(t)
	f.users.Err = serrors.ErrUpstream

	_, err := f.service.Authorize(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Query:  authorizeQuery(),
		Form:   url.Values{"login": {testUsername}, "password": {testPassword}},
	})
	require.ErrorIs(t, err, serrors.ErrService)
}

func TestAuthorizeReleasesSessionLockDuringLogin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	resp, err := f.service.Authorize(ctx, &oauth2.Request{Method: http.MethodGet, Query: authorizeQuery()})
	require.NoError(t, err)
	id := sessionID(t, resp.Cookie)

	var acquired bool
	f.users.BeforeLogin = func(string) {
		done := make(chan struct{})
		go func() {
			unlock := f.locker.Lock(id)
			unlock()
			close(done)
		}()
		select {
		case <-done:
			acquired = true
		case <-time.After(2 * time.Second):
		}
	}

	resp, err = f.service.Authorize(ctx, &oauth2.Request{
		Method: http.MethodPost,
		Query:  authorizeQuery(),
		Form:   url.Values{"login": {testUsername}, "password": {testPassword}},
		Cookie: resp.Cookie,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.Status)
	require.True(t, acquired, "session lock held while calling the login backend")
	require.Equal(t, 0, f.locker.Len())
}

func TestAuthorizeRejectsUnverifiedRedirect(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name  string
		query url.Values
	}{
		{"unknown client", url.Values{"client_id": {"nope"}, "response_type": {"code"}}},
		{"missing client", url.Values{"response_type": {"code"}}},
		{"redirect mismatch", authorizeQuery("redirect_uri", "https://evil.example/cb")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.service.Authorize(context.Background(), &oauth2.Request{Method: http.MethodGet, Query: tt.query})
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.Status)
			require.Empty(t, resp.Location)
		})
	}
}

func TestAuthorizeErrorRedirects(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name  string
		query url.Values
		code  oauth2.ErrorCode
	}{
		{"scope not registered", authorizeQuery("scope", "admin", "state", testState), oauth2.ErrorInvalidScope},
		{"unsupported response type", authorizeQuery("response_type", "token", "state", testState), oauth2.ErrorUnsupportedResponseType},
		{"missing response type", url.Values{"client_id": {testClientID}, "state": {testState}}, oauth2.ErrorUnsupportedResponseType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.service.Authorize(context.Background(), &oauth2.Request{Method: http.MethodGet, Query: tt.query})
			require.NoError(t, err)
			require.Equal(t, http.StatusFound, resp.Status)
			location, err := url.Parse(resp.Location)
			require.NoError(t, err)
			require.Equal(t, "app.example", location.Host)
			require.Equal(t, string(tt.code), location.Query().Get("error"))
			require.Equal(t, testState, location.Query().Get("state"))
			require.Empty(t, location.Query().Get("code"))
		})
	}
}

func TestTokenExchangeScenario(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)

	tr := f.exchange(t, code)
	require.NotEmpty(t, *tr.AccessToken)
	require.NotEmpty(t, *tr.RefreshToken)
	require.Equal(t, oauth2.TokenTypeBearer, tr.TokenType)
	require.Equal(t, 3600, tr.ExpiresIn)
	require.Equal(t, f.now.Add(time.Hour).Unix(), tr.Expires)
	require.Equal(t, "default", tr.Scope)

	resp, err := f.service.Token(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {testClientID}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, oauth2.ErrorInvalidGrant, decodeError(t, resp).Error)
}

func TestTokenClientMismatchKeepsCode(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)

	resp, err := f.service.Token(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form: url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"client_id":     {testBackendID},
			"client_secret": {testBackendSecret},
		},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, oauth2.ErrorInvalidGrant, decodeError(t, resp).Error)

	// the rejected exchange rolled back, the rightful client can still redeem
	f.exchange(t, code)
}

func TestTokenRequestErrors(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)

	tests := []struct {
		name   string
		form   url.Values
		status int
		code   oauth2.ErrorCode
	}{
		{"missing grant type", url.Values{"code": {code}, "client_id": {testClientID}}, http.StatusBadRequest, oauth2.ErrorInvalidRequest},
		{"unsupported grant type", url.Values{"grant_type": {"password"}, "client_id": {testClientID}}, http.StatusBadRequest, oauth2.ErrorUnsupportedGrantType},
		{"missing code", url.Values{"grant_type": {"authorization_code"}, "client_id": {testClientID}}, http.StatusBadRequest, oauth2.ErrorInvalidRequest},
		{"unknown client", url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {"nope"}}, http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"wrong secret", url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {testBackendID}, "client_secret": {"x"}}, http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"redirect mismatch", url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {testClientID}, "redirect_uri": {"https://app.example/other"}}, http.StatusBadRequest, oauth2.ErrorInvalidGrant},
		{"unknown code", url.Values{"grant_type": {"authorization_code"}, "code": {"nope"}, "client_id": {testClientID}}, http.StatusBadRequest, oauth2.ErrorInvalidGrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.service.Token(context.Background(), &oauth2.Request{Method: http.MethodPost, Form: tt.form})
			require.NoError(t, err)
			require.Equal(t, tt.status, resp.Status)
			require.Equal(t, tt.code, decodeError(t, resp).Error)
		})
	}

	// none of the failures consumed the code
	f.exchange(t, code)
}

func TestTokenExpiredCode(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)

	f.now = f.now.Add(time.Hour)
	resp, err := f.service.Token(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"authorization_code"}, "code": {code}, "client_id": {testClientID}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestResourceExpiry(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)
	tr := f.exchange(t, code)
	issuedAt := f.now

	f.now = issuedAt.Add(3599 * time.Second)
	resp, err := f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *tr.AccessToken})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	var summary oauth2.GrantSummary
	require.NoError(t, json.Unmarshal(resp.Body, &summary))
	require.Equal(t, testClientID, summary.ClientID)
	require.Equal(t, "default", summary.Scope)

	f.now = issuedAt.Add(3601 * time.Second)
	resp, err = f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *tr.AccessToken})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Contains(t, resp.WWWAuthenticate, "Bearer")
	require.Contains(t, resp.WWWAuthenticate, `error="invalid_token"`)
	require.NotContains(t, string(resp.Body), testClientID)
	require.NotContains(t, string(resp.Body), summary.OwnerID)
}

func TestResourceWithoutToken(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, `Bearer realm="oauth"`, resp.WWWAuthenticate)
	require.NotEmpty(t, resp.Cookie)
}

func TestRefresh(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)
	tr := f.exchange(t, code)

	f.now = f.now.Add(2 * time.Hour)
	resp, err := f.service.Refresh(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"refresh_token"}, "refresh_token": {*tr.RefreshToken}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var refreshed oauth2.TokenResponse
	require.NoError(t, json.Unmarshal(resp.Body, &refreshed))
	require.Equal(t, *tr.RefreshToken, *refreshed.RefreshToken)
	require.NotEqual(t, *tr.AccessToken, *refreshed.AccessToken)
	require.Equal(t, 3600, refreshed.ExpiresIn)

	resp, err = f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *refreshed.AccessToken})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	resp, err = f.service.Refresh(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"unknown"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, oauth2.ErrorInvalidGrant, decodeError(t, resp).Error)
}

func TestRefreshConfidentialClient(t *testing.T) {
	f := setupTestFixture(t)
	tr := f.loginBackend(t)
	require.Equal(t, "read write", tr.Scope)

	refresh := func(form url.Values, authorization string) *oauth2.Response {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", *tr.RefreshToken)
		resp, err := f.service.Refresh(context.Background(), &oauth2.Request{Method: http.MethodPost, Form: form, Authorization: authorization})
		require.NoError(t, err)
		return resp
	}

	tests := []struct {
		name          string
		form          url.Values
		authorization string
		status        int
		code          oauth2.ErrorCode
	}{
		{"no credentials", url.Values{}, "", http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"secret without client_id", url.Values{"client_secret": {"x"}}, "", http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"wrong secret", url.Values{"client_id": {testBackendID}, "client_secret": {"x"}}, "", http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"missing secret", url.Values{"client_id": {testBackendID}}, "", http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"wrong basic secret", url.Values{}, basicAuth(testBackendID, "x"), http.StatusUnauthorized, oauth2.ErrorInvalidClient},
		{"other client", url.Values{"client_id": {testClientID}}, "", http.StatusBadRequest, oauth2.ErrorInvalidGrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := refresh(tt.form, tt.authorization)
			require.Equal(t, tt.status, resp.Status)
			require.Equal(t, tt.code, decodeError(t, resp).Error)
			if tt.status == http.StatusUnauthorized {
				require.Contains(t, resp.WWWAuthenticate, "Basic")
			}
		})
	}

	// none of the rejected calls replaced the access token
	resp, err := f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *tr.AccessToken})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = refresh(url.Values{"client_id": {testBackendID}, "client_secret": {testBackendSecret}}, "")
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	resp = refresh(url.Values{}, basicAuth(testBackendID, testBackendSecret))
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
}

func TestRefreshThroughTokenEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)
	tr := f.exchange(t, code)

	resp, err := f.service.Token(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"refresh_token"}, "refresh_token": {*tr.RefreshToken}, "client_id": {testClientID}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	resp, err = f.service.Refresh(context.Background(), &oauth2.Request{
		Method: http.MethodPost,
		Form:   url.Values{"grant_type": {"authorization_code"}, "refresh_token": {*tr.RefreshToken}},
	})
	require.NoError(t, err)
	require.Equal(t, oauth2.ErrorUnsupportedGrantType, decodeError(t, resp).Error)
}

func TestIndex(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)
	tr := f.exchange(t, code)

	resp, err := f.service.Index(context.Background(), &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *tr.AccessToken})
	require.NoError(t, err)
	require.Equal(t, "Authorized", string(resp.Body))

	resp, err = f.service.Index(context.Background(), &oauth2.Request{Method: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "Not Authorized", string(resp.Body))
}

func TestSessionCookies(t *testing.T) {
	ctx := context.Background()

	t.Run("tampered cookie rejected in strict mode", func(t *testing.T) {
		f := setupTestFixture(t)
		_, cookie := f.login(t)
		tampered := cookie[:len(cookie)-2] + "AA"
		if tampered == cookie {
			tampered = cookie[:len(cookie)-2] + "BB"
		}

		resp, err := f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: tampered})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
		require.True(t, resp.ClearCookie)
		require.Empty(t, resp.Cookie)
	})

	t.Run("malformed cookie rejected in strict mode", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, err := f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: "a.b.c"})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("tampered cookie replaced when not strict", func(t *testing.T) {
		f := setupTestFixture(t, auth.WithStrictSessionCookies(false))
		_, cookie := f.login(t)
		id := sessionID(t, cookie)

		resp, err := f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: id + ".AAAA"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)
		require.NotEqual(t, id, sessionID(t, resp.Cookie))
	})

	t.Run("unknown session is replaced", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, err := f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: "gone.AAAA"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)
		require.NotEqual(t, "gone", sessionID(t, resp.Cookie))
	})

	t.Run("cookie re-signed with new timestamp", func(t *testing.T) {
		f := setupTestFixture(t)
		_, cookie := f.login(t)
		f.now = f.now.Add(time.Minute)

		resp, err := f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: cookie})
		require.NoError(t, err)
		require.Equal(t, sessionID(t, cookie), sessionID(t, resp.Cookie))
		require.NotEqual(t, cookie, resp.Cookie)

		stored, err := f.sessions.Get(ctx, sessionID(t, cookie))
		require.NoError(t, err)
		require.Equal(t, f.now.UnixMilli(), stored.Timestamp)

		// the superseded cookie no longer verifies
		resp, err = f.service.Index(ctx, &oauth2.Request{Method: http.MethodGet, Cookie: cookie})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("logged in", func(t *testing.T) {
		f := setupTestFixture(t)
		_, cookie := f.login(t)
		resp, err := f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: url.Values{}, Cookie: cookie})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)
		require.Contains(t, string(resp.Body), testUsername)
	})

	t.Run("starts authorization", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, err := f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: authorizeQuery()})
		require.NoError(t, err)
		require.Equal(t, http.StatusFound, resp.Status)
		require.Equal(t, "/authorize?client_id=webapp&response_type=code", resp.Location)
	})

	t.Run("nothing to go on", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, err := f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: url.Values{}})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("code hands the login to a new session", func(t *testing.T) {
		f := setupTestFixture(t)
		code, _ := f.login(t)

		resp, err := f.service.Authenticate(ctx, &oauth2.Request{
			Method: http.MethodGet,
			Query:  url.Values{"code": {code}, "client_id": {testClientID}, "response_type": {"code"}},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusFound, resp.Status)
		require.Equal(t, testRedirectURI, resp.Location)

		stored, err := f.sessions.Get(ctx, sessionID(t, resp.Cookie))
		require.NoError(t, err)
		require.True(t, stored.LoggedIn())

		// single use
		resp, err = f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: url.Values{"code": {code}, "client_id": {testClientID}}})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("code without client is refused", func(t *testing.T) {
		f := setupTestFixture(t)
		code, _ := f.login(t)

		resp, err := f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: url.Values{"code": {code}}})
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.Status)
		stored, err := f.sessions.Get(ctx, sessionID(t, resp.Cookie))
		require.NoError(t, err)
		require.False(t, stored.LoggedIn())

		// the refused attempt left the code redeemable
		f.exchange(t, code)
	})

	t.Run("confidential client must authenticate", func(t *testing.T) {
		f := setupTestFixture(t)
		code, _ := f.loginWith(t, authorizeQuery("client_id", testBackendID))

		for _, secret := range []string{"", "x"} {
			q := url.Values{"code": {code}, "client_id": {testBackendID}}
			if secret != "" {
				q.Set("client_secret", secret)
			}
			resp, err := f.service.Authenticate(ctx, &oauth2.Request{Method: http.MethodGet, Query: q})
			require.NoError(t, err)
			require.Equal(t, http.StatusForbidden, resp.Status, "secret %q", secret)
		}

		resp, err := f.service.Authenticate(ctx, &oauth2.Request{
			Method: http.MethodGet,
			Query:  url.Values{"code": {code}, "client_id": {testBackendID}, "client_secret": {testBackendSecret}},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusFound, resp.Status)
		require.Equal(t, "https://backend.example/cb", resp.Location)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	revoke := func(t *testing.T, f *testFixture, form url.Values) *oauth2.Response {
		t.Helper()
		resp, err := f.service.Revoke(ctx, &oauth2.Request{Method: http.MethodPost, Form: form})
		require.NoError(t, err)
		return resp
	}

	t.Run("refresh token removes the pair", func(t *testing.T) {
		f := setupTestFixture(t)
		code, _ := f.login(t)
		tr := f.exchange(t, code)

		resp := revoke(t, f, url.Values{"token": {*tr.RefreshToken}, "client_id": {testClientID}})
		require.Equal(t, http.StatusOK, resp.Status)
		require.Empty(t, resp.Body)

		resp, err := f.service.Resource(ctx, &oauth2.Request{Method: http.MethodGet, Authorization: "Bearer " + *tr.AccessToken})
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.Status)
		_, err = f.tokens.RecoverRefresh(ctx, *tr.RefreshToken)
		require.ErrorIs(t, err, serrors.ErrInvalidRefresh)

		// already revoked
		require.Equal(t, http.StatusOK, revoke(t, f, url.Values{"token": {*tr.RefreshToken}, "client_id": {testClientID}}).Status)
	})

	t.Run("confidential client", func(t *testing.T) {
		f := setupTestFixture(t)
		tr := f.loginBackend(t)

		resp := revoke(t, f, url.Values{"token": {*tr.AccessToken}, "client_id": {testBackendID}})
		require.Equal(t, http.StatusUnauthorized, resp.Status)
		require.Equal(t, oauth2.ErrorInvalidClient, decodeError(t, resp).Error)

		resp = revoke(t, f, url.Values{"token": {*tr.AccessToken}, "client_id": {testClientID}})
		require.Equal(t, http.StatusBadRequest, resp.Status)
		require.Equal(t, oauth2.ErrorInvalidGrant, decodeError(t, resp).Error)

		_, err := f.tokens.RecoverToken(ctx, *tr.AccessToken)
		require.NoError(t, err)

		resp, err = f.service.Revoke(ctx, &oauth2.Request{
			Method:        http.MethodPost,
			Form:          url.Values{"token": {*tr.AccessToken}, "token_type_hint": {"access_token"}},
			Authorization: basicAuth(testBackendID, testBackendSecret),
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)
		_, err = f.tokens.RecoverToken(ctx, *tr.AccessToken)
		require.ErrorIs(t, err, serrors.ErrInvalidToken)
	})

	t.Run("malformed requests", func(t *testing.T) {
		f := setupTestFixture(t)

		resp := revoke(t, f, url.Values{"client_id": {testClientID}})
		require.Equal(t, http.StatusBadRequest, resp.Status)
		require.Equal(t, oauth2.ErrorInvalidRequest, decodeError(t, resp).Error)

		resp = revoke(t, f, url.Values{"token": {"unknown"}})
		require.Equal(t, http.StatusUnauthorized, resp.Status)

		resp = revoke(t, f, url.Values{"token": {"unknown"}, "client_id": {testClientID}})
		require.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestConcurrentRequestsOnOneSession(t *testing.T) {
	f := setupTestFixture(t)
	_, cookie := f.login(t)

	var wg sync.WaitGroup
	results := make([]*oauth2.Response, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.service.Resource(context.Background(), &oauth2.Request{Method: http.MethodGet, Cookie: cookie})
			if err == nil {
				results[i] = resp
			}
		}(i)
	}
	wg.Wait()

	// the first request re-signs the session, later ones carry a stale tag
	var accepted int
	for _, resp := range results {
		require.NotNil(t, resp)
		if resp.Status == http.StatusUnauthorized {
			accepted++
		}
	}
	require.GreaterOrEqual(t, accepted, 1)
	require.Equal(t, 0, f.locker.Len())
}

func TestMetrics(t *testing.T) {
	f := setupTestFixture(t)
	code, _ := f.login(t)
	f.exchange(t, code)

	count, err := testutil.GatherAndCount(f.registry, "oauth_flows_total", "oauth_logins_total")
	require.NoError(t, err)
	// authorize/login, authorize/ok, token/ok and logins/ok
	require.Equal(t, 4, count)
}
