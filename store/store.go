// Package store defines the durable record store used by every registry: named
// collections of JSON encoded records, point lookups, linear predicate scans
// and transactions that may span collections.
package store

import (
	"context"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

// Collection names.
const (
	CollectionServer         = "server"
	CollectionSessions       = "sessions"
	CollectionAuthorizations = "authorizations"
	CollectionTokens         = "tokens"
	CollectionGrants         = "grants"
)

// Collections lists every collection a backend must provide.
var Collections = []string{
	CollectionServer,
	CollectionSessions,
	CollectionAuthorizations,
	CollectionTokens,
	CollectionGrants,
}

// Tx is a transaction over the store. Byte slices handed out by a Tx are only
// valid until the transaction ends.
type Tx interface {
	Get(collection, key string) ([]byte, error)
	Put(collection, key string, value []byte) error
	Delete(collection, key string) error
	// ForEach visits entries in ascending key order until fn returns an error.
	ForEach(collection string, fn func(key string, value []byte) error) error
	Writable() bool
}

// Store is implemented by boltstore and memstore. Update commits durably
// before returning; a failing fn rolls back every write it made.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Flush() error
	Close() error
}

type txKey struct{}

// WithTx returns a context carrying tx. View and Update called with such a
// context run fn inside tx instead of opening a new transaction.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok
}

// Joined returns the transaction on ctx that a backend should reuse. It fails
// when a write is requested inside a read-only transaction.
func Joined(ctx context.Context, write bool) (Tx, bool, error) {
	tx, ok := TxFrom(ctx)
	if !ok {
		return nil, false, nil
	}
	if write && !tx.Writable() {
		return nil, true, serrors.ErrReadOnlyTx
	}
	return tx, true, nil
}
