package sessions

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/internal/utils"
	"github.com/jrsteele09/oauth-lite/signing"
	"github.com/jrsteele09/oauth-lite/store"
)

// CookieName is the name of the session cookie.
const CookieName = "SID"

const defaultIDLength = 32

// Store persists sessions and turns them into signed cookie values.
type Store struct {
	db       store.Store
	signer   signing.Signer
	now      func() time.Time
	idLength int
}

type Option func(*Store)

func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithIDLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.idLength = n
		}
	}
}

func NewStore(db store.Store, signer signing.Signer, opts ...Option) *Store {
	s := &Store{
		db:       db,
		signer:   signer,
		now:      time.Now,
		idLength: defaultIDLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates and persists a fresh anonymous session.
func (s *Store) New(ctx context.Context) (*Session, error) {
	id, err := utils.RandomToken(s.idLength)
	if err != nil {
		return nil, err
	}
	session := &Session{ID: id}
	session.Touch(s.now())
	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads a session. A missing session is ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	var session *Session
	err := s.db.View(ctx, func(tx store.Tx) error {
		var err error
		session, err = store.Get[Session](tx, store.CollectionSessions, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, serrors.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) Save(ctx context.Context, session *Session) error {
	return s.db.Update(ctx, func(tx store.Tx) error {
		return store.Put(tx, store.CollectionSessions, session.ID, session)
	})
}

// Prune deletes sessions last touched before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := s.db.Update(ctx, func(tx store.Tx) error {
		var err error
		removed, err = store.DeleteAll(tx, store.CollectionSessions, func(session *Session) bool {
			return session.LastSeen().Before(cutoff)
		})
		return err
	})
	return removed, err
}

// CookieValue signs session and returns "<id>.<tag>".
func (s *Store) CookieValue(session *Session) (string, error) {
	tag, err := s.signer.Sign(session)
	if err != nil {
		return "", err
	}
	return session.ID + "." + tag, nil
}

// ParseCookie resolves a cookie value to the stored session it names. The tag
// is checked against the stored record, so a cookie is only accepted while it
// matches the most recently signed state of its session.
func (s *Store) ParseCookie(ctx context.Context, value string) (*Session, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, serrors.ErrMalformedCookie
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil || !utf8.ValidString(id) {
		return nil, serrors.ErrMalformedCookie
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.signer.Verify(session, parts[1]); err != nil {
		return nil, errors.Wrapf(err, "[Store.ParseCookie] session %s", id)
	}
	return session, nil
}
