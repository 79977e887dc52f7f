// Package boltstore is the durable store backend, one bbolt bucket per
// collection.
package boltstore

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/store"
)

type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and makes sure
// every collection exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[boltstore.Open] %s", path))
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range store.Collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, serrors.Service(pkgerrors.Wrap(err, "[boltstore.Open] creating buckets"))
	}
	return &Store{db: db}, nil
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if tx, ok, err := store.Joined(ctx, false); ok || err != nil {
		if err != nil {
			return err
		}
		return fn(tx)
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// Update runs fn in a read-write transaction. bbolt fsyncs on commit, so a
// returned nil means the writes survive a crash.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if tx, ok, err := store.Joined(ctx, true); ok || err != nil {
		if err != nil {
			return err
		}
		return fn(tx)
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

func (s *Store) Flush() error {
	if err := s.db.Sync(); err != nil {
		return serrors.Service(pkgerrors.Wrap(err, "[boltstore.Flush]"))
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) bucket(collection string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(collection))
	if b != nil || !t.tx.Writable() {
		return b, nil
	}
	return t.tx.CreateBucketIfNotExists([]byte(collection))
}

func (t *boltTx) Get(collection, key string) ([]byte, error) {
	b, err := t.bucket(collection)
	if err != nil || b == nil {
		return nil, err
	}
	return b.Get([]byte(key)), nil
}

func (t *boltTx) Put(collection, key string, value []byte) error {
	if !t.tx.Writable() {
		return serrors.ErrReadOnlyTx
	}
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), value)
}

func (t *boltTx) Delete(collection, key string) error {
	if !t.tx.Writable() {
		return serrors.ErrReadOnlyTx
	}
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	return b.Delete([]byte(key))
}

func (t *boltTx) ForEach(collection string, fn func(key string, value []byte) error) error {
	b, err := t.bucket(collection)
	if err != nil || b == nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}

func (t *boltTx) Writable() bool {
	return t.tx.Writable()
}
