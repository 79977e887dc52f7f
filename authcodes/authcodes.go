// Package authcodes keeps the outstanding one-time authorization codes of
// every resource owner.
package authcodes

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
	DefaultLifetime   = time.Hour
	DefaultCodeLength = 32
)

type Code struct {
	Value string    `json:"code"`
	Until time.Time `json:"until"`
}

// Record holds the codes issued to one owner, oldest first.
type Record struct {
	OwnerID string `json:"owner_id"`
	Codes   []Code `json:"codes"`
}

// clean drops codes that expired at or before now.
func (r *Record) clean(now time.Time) {
	kept := r.Codes[:0]
	for _, c := range r.Codes {
		if now.Before(c.Until) {
			kept = append(kept, c)
		}
	}
	r.Codes = kept
}

func (r *Record) indexOf(code string) int {
	for i, c := range r.Codes {
		if c.Value == code {
			return i
		}
	}
	return -1
}

type Registry struct {
	db         store.Store
	grants     *grants.Registry
	now        func() time.Time
	lifetime   time.Duration
	codeLength int
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

func WithCodeLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.codeLength = n
		}
	}
}

func NewRegistry(db store.Store, grantRegistry *grants.Registry, opts ...Option) *Registry {
	r := &Registry{
		db:         db,
		grants:     grantRegistry,
		now:        time.Now,
		lifetime:   DefaultLifetime,
		codeLength: DefaultCodeLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authorize mints a code for g.OwnerID. The caller records g in the grant
// registry, normally in the same transaction.
func (r *Registry) Authorize(ctx context.Context, g grants.Grant) (string, error) {
	code, err := utils.RandomToken(r.codeLength)
	if err != nil {
		return "", err
	}
	now := r.now()
	err = r.db.Update(ctx, func(tx store.Tx) error {
		rec, err := store.Get[Record](tx, store.CollectionAuthorizations, g.OwnerID)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &Record{OwnerID: g.OwnerID}
		}
		rec.clean(now)
		rec.Codes = append(rec.Codes, Code{Value: code, Until: now.Add(r.lifetime)})
		return store.Put(tx, store.CollectionAuthorizations, g.OwnerID, rec)
	})
	if err != nil {
		return "", errors.Wrap(err, "[Registry.Authorize]")
	}
	return code, nil
}

// Extract redeems code and returns the grant it was issued under. A code can
// be redeemed once; unknown and expired codes are ErrInvalidCode.
func (r *Registry) Extract(ctx context.Context, code string) (*grants.Grant, error) {
	if code == "" {
		return nil, serrors.ErrInvalidCode
	}
	now := r.now()
	var g *grants.Grant
	err := r.db.Update(ctx, func(tx store.Tx) error {
		rec, err := store.Find(tx, store.CollectionAuthorizations, func(rec *Record) bool {
			return rec.indexOf(code) >= 0
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return serrors.ErrInvalidCode
		}
		i := rec.indexOf(code)
		if !now.Before(rec.Codes[i].Until) {
			return serrors.ErrInvalidCode
		}
		rec.Codes = append(rec.Codes[:i], rec.Codes[i+1:]...)
		rec.clean(now)
		if len(rec.Codes) == 0 {
			if err := tx.Delete(store.CollectionAuthorizations, rec.OwnerID); err != nil {
				return serrors.Service(err)
			}
		} else if err := store.Put(tx, store.CollectionAuthorizations, rec.OwnerID, rec); err != nil {
			return err
		}
		g, err = r.grants.Get(store.WithTx(ctx, tx), rec.OwnerID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.Extract]")
	}
	return g, nil
}

// Prune removes expired codes and deletes records left without any.
func (r *Registry) Prune(ctx context.Context) (int, error) {
	now := r.now()
	var removed int
	err := r.db.Update(ctx, func(tx store.Tx) error {
		records, err := store.FindAll(tx, store.CollectionAuthorizations, func(*Record) bool { return true })
		if err != nil {
			return err
		}
		for _, rec := range records {
			before := len(rec.Codes)
			rec.clean(now)
			if len(rec.Codes) == before {
				continue
			}
			removed += before - len(rec.Codes)
			if len(rec.Codes) == 0 {
				if err := tx.Delete(store.CollectionAuthorizations, rec.OwnerID); err != nil {
					return serrors.Service(err)
				}
				continue
			}
			if err := store.Put(tx, store.CollectionAuthorizations, rec.OwnerID, rec); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}
