package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/oauth-lite/auth"
	"github.com/jrsteele09/oauth-lite/authcodes"
	"github.com/jrsteele09/oauth-lite/clients"
	"github.com/jrsteele09/oauth-lite/grants"
	"github.com/jrsteele09/oauth-lite/internal/config"
	"github.com/jrsteele09/oauth-lite/sessions"
	"github.com/jrsteele09/oauth-lite/signing"
	"github.com/jrsteele09/oauth-lite/store"
	"github.com/jrsteele09/oauth-lite/token"
	"github.com/jrsteele09/oauth-lite/users"
)

// System is every registry behind one server, sharing a single store.
type System struct {
	Repos    auth.Repos
	sessions *sessions.Store
	codes    *authcodes.Registry
	maxAge   time.Duration
	now      func() time.Time
}

// InitialiseSystem loads or creates the signing key, registers the configured
// clients and builds the registries and the login backend over db.
func InitialiseSystem(ctx context.Context, cfg config.Config, db store.Store) (*System, error) {
	signer, err := signing.LoadOrCreate(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, "[InitialiseSystem] failed to load signing key")
	}

	clientRegistry, err := clients.NewRegistryFromConfig(cfg.GetClients())
	if err != nil {
		return nil, errors.Wrap(err, "[InitialiseSystem] failed to register clients")
	}
	for _, c := range cfg.GetClients() {
		log.Info().Str("client_id", c.ID).Str("redirect_uri", c.RedirectURI).Str("scope", c.Scope).Msg("Registered client")
	}

	authenticator, err := users.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[InitialiseSystem] failed to create login backend")
	}

	grantRegistry := grants.NewRegistry(db)
	sys := &System{
		sessions: sessions.NewStore(db, signer, sessions.WithIDLength(cfg.GetSessionIDLength())),
		codes: authcodes.NewRegistry(db, grantRegistry,
			authcodes.WithLifetime(cfg.GetAuthCodeTimeout()),
			authcodes.WithCodeLength(cfg.GetCodeGenerationLength())),
		maxAge: cfg.GetMaxSessionAge(),
		now:    time.Now,
	}
	sys.Repos = auth.Repos{
		Store:   db,
		Clients: clientRegistry,
		Codes:   sys.codes,
		Tokens: token.NewRegistry(db, grantRegistry,
			token.WithLifetime(cfg.GetDefaultAccessTokenExpiry()),
			token.WithTokenLengths(cfg.GetAccessTokenLength(), cfg.GetRefreshTokenLength())),
		Grants:   grantRegistry,
		Sessions: sys.sessions,
		Users:    authenticator,
	}
	return sys, nil
}

// Prune deletes sessions idle for longer than the maximum session age and
// authorization records whose codes have all expired.
func (sys *System) Prune(ctx context.Context) error {
	removedSessions, err := sys.sessions.Prune(ctx, sys.now().Add(-sys.maxAge))
	if err != nil {
		return errors.Wrap(err, "[System.Prune] sessions")
	}
	removedCodes, err := sys.codes.Prune(ctx)
	if err != nil {
		return errors.Wrap(err, "[System.Prune] authorization codes")
	}
	if removedSessions > 0 || removedCodes > 0 {
		log.Debug().Int("sessions", removedSessions).Int("authorizations", removedCodes).Msg("Pruned expired records")
	}
	return nil
}

// RunJanitor calls Prune every interval until ctx is done. Prune failures are
// logged and retried on the next tick.
func (sys *System) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sys.Prune(ctx); err != nil {
				log.Err(err).Msg("Janitor pass failed")
			}
		}
	}
}
