package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.flowHandler(s.auth.Index), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+s.config.GetLoginPath(), ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.flowHandler(s.auth.Authorize), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthorize, ChainMiddleware(s.flowHandler(s.auth.Authorize), s.HTMLMiddleWare(s.LoginRateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuthenticate, ChainMiddleware(s.flowHandler(s.auth.Authenticate), s.HTMLMiddleWare()...))

	// OAuth2 API routes
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.flowHandler(s.auth.Token), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRefresh, ChainMiddleware(s.flowHandler(s.auth.Refresh), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.flowHandler(s.auth.Revoke), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteResource, ChainMiddleware(s.flowHandler(s.auth.Resource), s.APIMiddleware()...))
	for _, route := range []string{RouteToken, RouteRefresh, RouteRevoke, RouteResource} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(preflightHandler, s.APIMiddleware()...))
	}

	s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP, s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteHealthz, ChainMiddleware(healthzHandler, s.RecoverMiddleware))
}

// preflightHandler answers OPTIONS requests that carry no Origin. Requests with
// an Origin are answered by CorsMiddleware.
func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentTypeText)
	_, _ = w.Write([]byte("ok"))
}

func logError(r *http.Request, err error, msg string) {
	log.Ctx(r.Context()).Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(msg)
}
