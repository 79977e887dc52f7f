package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/oauth-lite/auth"
	"github.com/jrsteele09/oauth-lite/internal/config"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	registry  *prometheus.Registry
	limiter   *loginLimiter
	loginTmpl *template.Template
}

// New builds the protocol engine over repos and registers every route. Flow
// counters are registered with registry, which /metrics also serves.
func New(cfg config.Config, repos auth.Repos, registry *prometheus.Registry, options ...auth.AuthorizationServiceOption) (*Server, error) {
	if registry == nil {
		return nil, errors.New("[server.New] metrics registry is required")
	}

	opts := append([]auth.AuthorizationServiceOption{
		auth.WithStrictSessionCookies(cfg.GetStrictSessionCookies()),
		auth.WithLoginPath(cfg.GetLoginPath()),
		auth.WithGrantLifetime(cfg.GetAuthCodeTimeout()),
		auth.WithMetrics(auth.NewMetrics(registry)),
	}, options...)
	authService, err := auth.NewAuthorizationService(repos, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] failed to create authorization service")
	}

	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] failed to parse login template")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		auth:      authService,
		registry:  registry,
		loginTmpl: loginTmpl,
	}
	if cfg.GetEnableRateLimiting() {
		s.limiter = newLoginLimiter(cfg.GetLoginRateLimit())
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
