package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/oauth2"
	"github.com/jrsteele09/oauth-lite/sessions"
)

// sessionHandle is the session of one request. While held it owns the
// session's lock; it must not outlive the request.
type sessionHandle struct {
	store   SessionStore
	locker  *sessions.Locker
	session *sessions.Session
	unlock  func()
}

// openSession resolves the request's session, minting a new one when the
// cookie is absent or names an unknown session. A cookie that fails its
// integrity check yields a 403 response in strict mode.
func (as *AuthorizationService) openSession(ctx context.Context, req *oauth2.Request) (*sessionHandle, *oauth2.Response, error) {
	h := &sessionHandle{store: as.repos.Sessions, locker: as.locker}
	if req.Cookie != "" {
		session, err := as.repos.Sessions.ParseCookie(ctx, req.Cookie)
		switch {
		case err == nil:
			h.lock(session.ID)
			if err := h.reload(ctx); err != nil {
				h.release()
				if !errors.Is(err, serrors.ErrSessionNotFound) {
					return nil, nil, err
				}
				// pruned while we waited for the lock
				return as.newSession(ctx, h)
			}
			return h, nil, nil
		case errors.Is(err, serrors.ErrSessionNotFound):
			log.Debug().Msg("session cookie names an unknown session")
		case errors.Is(err, serrors.ErrMalformedCookie), errors.Is(err, serrors.ErrSignatureMismatch):
			log.Warn().Err(err).Str("remote_addr", req.RemoteAddr).Bool("strict", as.strictCookies).Msg("session cookie rejected")
			as.metrics.cookieRejected()
			if as.strictCookies {
				resp := oauth2.Text(403, "invalid session cookie")
				resp.ClearCookie = true
				return nil, resp, nil
			}
		default:
			return nil, nil, err
		}
	}
	return as.newSession(ctx, h)
}

func (as *AuthorizationService) newSession(ctx context.Context, h *sessionHandle) (*sessionHandle, *oauth2.Response, error) {
	session, err := as.repos.Sessions.New(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[AuthorizationService.newSession]")
	}
	h.session = session
	h.lock(session.ID)
	return h, nil, nil
}

func (h *sessionHandle) lock(id string) {
	if h.session == nil || h.session.ID != id {
		h.session = &sessions.Session{ID: id}
	}
	h.unlock = h.locker.Lock(id)
}

func (h *sessionHandle) release() {
	if h.unlock != nil {
		h.unlock()
		h.unlock = nil
	}
}

// reload replaces the held copy with the stored session.
func (h *sessionHandle) reload(ctx context.Context) error {
	session, err := h.store.Get(ctx, h.session.ID)
	if err != nil {
		return err
	}
	h.session = session
	return nil
}

// reacquire takes the lock back after release and picks up whatever other
// requests wrote to the session meanwhile.
func (h *sessionHandle) reacquire(ctx context.Context) error {
	h.lock(h.session.ID)
	err := h.reload(ctx)
	if errors.Is(err, serrors.ErrSessionNotFound) {
		return nil
	}
	return err
}

// commit touches and persists the session and signs it into resp.
func (h *sessionHandle) commit(ctx context.Context, resp *oauth2.Response, now time.Time) error {
	h.session.Touch(now)
	if err := h.store.Save(ctx, h.session); err != nil {
		return err
	}
	cookie, err := h.store.CookieValue(h.session)
	if err != nil {
		return err
	}
	resp.Cookie = cookie
	return nil
}
