package grants

import (
	"context"
	"time"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/store"
)

// Grant is the delegation a resource owner last approved.
type Grant struct {
	OwnerID     string    `json:"owner_id"`
	ClientID    string    `json:"client_id"`
	Scope       string    `json:"scope"`
	RedirectURI string    `json:"redirect_uri"`
	Until       time.Time `json:"until"`
}

// Registry keeps one grant per owner.
type Registry struct {
	db store.Store
}

func NewRegistry(db store.Store) *Registry {
	return &Registry{db: db}
}

// Put stores g, replacing the owner's previous grant.
func (r *Registry) Put(ctx context.Context, g Grant) error {
	return r.db.Update(ctx, func(tx store.Tx) error {
		return store.Put(tx, store.CollectionGrants, g.OwnerID, &g)
	})
}

// Get returns the owner's grant or ErrGrantNotFound.
func (r *Registry) Get(ctx context.Context, ownerID string) (*Grant, error) {
	var g *Grant
	err := r.db.View(ctx, func(tx store.Tx) error {
		var err error
		g, err = store.Get[Grant](tx, store.CollectionGrants, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.Wrapf(serrors.ErrGrantNotFound, "[Registry.Get] owner %s", ownerID)
	}
	return g, nil
}
