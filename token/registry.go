// Package token keeps the access and refresh tokens issued to each resource
// owner.
package token

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/oauth-lite/grants"
	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/internal/utils"
	"github.com/jrsteele09/oauth-lite/store"
)

const (
	DefaultLifetime      = time.Hour
	DefaultAccessLength  = 32
	DefaultRefreshLength = 32
)

// Entry is one access/refresh pair. Until bounds the access token; the
// refresh token stays usable until revoked.
type Entry struct {
	Access  string    `json:"access_token"`
	Refresh string    `json:"refresh_token"`
	Until   time.Time `json:"until"`
}

// Record holds every pair issued to one owner.
type Record struct {
	OwnerID string  `json:"owner_id"`
	Tokens  []Entry `json:"tokens"`
}

// IssuedToken is what the token and refresh flows hand back to the client.
type IssuedToken struct {
	AccessToken  string
	RefreshToken string
	Until        time.Time
}

type Registry struct {
	db            store.Store
	grants        *grants.Registry
	now           func() time.Time
	lifetime      time.Duration
	accessLength  int
	refreshLength int
}

type Option func(*Registry)

func WithNowTime(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithLifetime(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lifetime = d
		}
	}
}

func WithTokenLengths(access, refresh int) Option {
	return func(r *Registry) {
		if access > 0 {
			r.accessLength = access
		}
		if refresh > 0 {
			r.refreshLength = refresh
		}
	}
}

func NewRegistry(db store.Store, grantRegistry *grants.Registry, opts ...Option) *Registry {
	r := &Registry{
		db:            db,
		grants:        grantRegistry,
		now:           time.Now,
		lifetime:      DefaultLifetime,
		accessLength:  DefaultAccessLength,
		refreshLength: DefaultRefreshLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue appends a new pair to the grant owner's record.
func (r *Registry) Issue(ctx context.Context, g grants.Grant) (IssuedToken, error) {
	access, err := utils.RandomToken(r.accessLength)
	if err != nil {
		return IssuedToken{}, err
	}
	refresh, err := utils.RandomToken(r.refreshLength)
	if err != nil {
		return IssuedToken{}, err
	}
	entry := Entry{Access: access, Refresh: refresh, Until: r.now().Add(r.lifetime)}

	err = r.db.Update(ctx, func(tx store.Tx) error {
		rec, err := store.Get[Record](tx, store.CollectionTokens, g.OwnerID)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &Record{OwnerID: g.OwnerID}
		}
		rec.Tokens = append(rec.Tokens, entry)
		return store.Put(tx, store.CollectionTokens, g.OwnerID, rec)
	})
	if err != nil {
		return IssuedToken{}, errors.Wrap(err, "[Registry.Issue]")
	}
	return IssuedToken{AccessToken: entry.Access, RefreshToken: entry.Refresh, Until: entry.Until}, nil
}

// RecoverToken returns the grant behind an access token that has not expired.
func (r *Registry) RecoverToken(ctx context.Context, access string) (*grants.Grant, error) {
	if access == "" {
		return nil, serrors.ErrInvalidToken
	}
	now := r.now()
	return r.recover(ctx, serrors.ErrInvalidToken, func(e Entry) bool {
		return e.Access == access && now.Before(e.Until)
	})
}

// RecoverRefresh returns the grant behind a refresh token.
func (r *Registry) RecoverRefresh(ctx context.Context, refresh string) (*grants.Grant, error) {
	if refresh == "" {
		return nil, serrors.ErrInvalidRefresh
	}
	return r.recover(ctx, serrors.ErrInvalidRefresh, func(e Entry) bool {
		return e.Refresh == refresh
	})
}

func (r *Registry) recover(ctx context.Context, notFound error, match func(Entry) bool) (*grants.Grant, error) {
	var g *grants.Grant
	err := r.db.View(ctx, func(tx store.Tx) error {
		rec, err := store.Find(tx, store.CollectionTokens, func(rec *Record) bool {
			return rec.index(match) >= 0
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return notFound
		}
		g, err = r.grants.Get(store.WithTx(ctx, tx), rec.OwnerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh replaces the access token and expiry paired with refresh. The
// refresh token itself is kept.
func (r *Registry) Refresh(ctx context.Context, refresh string) (IssuedToken, error) {
	if refresh == "" {
		return IssuedToken{}, serrors.ErrInvalidRefresh
	}
	access, err := utils.RandomToken(r.accessLength)
	if err != nil {
		return IssuedToken{}, err
	}
	until := r.now().Add(r.lifetime)

	err = r.db.Update(ctx, func(tx store.Tx) error {
		rec, err := store.Find(tx, store.CollectionTokens, func(rec *Record) bool {
			return rec.index(func(e Entry) bool { return e.Refresh == refresh }) >= 0
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return serrors.ErrInvalidRefresh
		}
		for i := range rec.Tokens {
			if rec.Tokens[i].Refresh == refresh {
				rec.Tokens[i].Access = access
				rec.Tokens[i].Until = until
			}
		}
		return store.Put(tx, store.CollectionTokens, rec.OwnerID, rec)
	})
	if err != nil {
		return IssuedToken{}, errors.Wrap(err, "[Registry.Refresh]")
	}
	return IssuedToken{AccessToken: access, RefreshToken: refresh, Until: until}, nil
}

// Revoke removes the pair holding value as either its access or refresh
// token. It reports whether anything was removed.
func (r *Registry) Revoke(ctx context.Context, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	match := func(e Entry) bool { return e.Access == value || e.Refresh == value }
	var revoked bool
	err := r.db.Update(ctx, func(tx store.Tx) error {
		rec, err := store.Find(tx, store.CollectionTokens, func(rec *Record) bool {
			return rec.index(match) >= 0
		})
		if err != nil || rec == nil {
			return err
		}
		kept := rec.Tokens[:0]
		for _, e := range rec.Tokens {
			if !match(e) {
				kept = append(kept, e)
			}
		}
		rec.Tokens = kept
		revoked = true
		if len(rec.Tokens) == 0 {
			return serrors.Service(tx.Delete(store.CollectionTokens, rec.OwnerID))
		}
		return store.Put(tx, store.CollectionTokens, rec.OwnerID, rec)
	})
	if err != nil {
		return false, errors.Wrap(err, "[Registry.Revoke]")
	}
	return revoked, nil
}

func (rec *Record) index(match func(Entry) bool) int {
	for i, e := range rec.Tokens {
		if match(e) {
			return i
		}
	}
	return -1
}
