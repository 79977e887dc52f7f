package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/store"
	"github.com/jrsteele09/oauth-lite/store/boltstore"
	"github.com/jrsteele09/oauth-lite/store/memstore"
)

type record struct {
	Owner string   `json:"owner"`
	Codes []string `json:"codes"`
}

const testCollection = store.CollectionAuthorizations

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	bolt, err := boltstore.Open(filepath.Join(t.TempDir(), "test.dat"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]store.Store{
		"bolt":   bolt,
		"memory": memstore.New(),
	}
}

func put(t *testing.T, s store.Store, records ...record) {
	t.Helper()
	err := s.Update(context.Background(), func(tx store.Tx) error {
		for i := range records {
			if err := store.Put(tx, testCollection, records[i].Owner, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s,
				record{Owner: "b", Codes: []string{"shared", "b1"}},
				record{Owner: "a", Codes: []string{"shared", "a1"}},
				record{Owner: "c", Codes: []string{"c1"}},
			)

			require.NoError(t, s.View(ctx, func(tx store.Tx) error {
				got, err := store.Get[record](tx, testCollection, "a")
				require.NoError(t, err)
				require.Equal(t, []string{"shared", "a1"}, got.Codes)

				missing, err := store.Get[record](tx, testCollection, "zz")
				require.NoError(t, err)
				require.Nil(t, missing)

				// first match in key order wins
				first, err := store.Find(tx, testCollection, func(r *record) bool {
					return contains(r.Codes, "shared")
				})
				require.NoError(t, err)
				require.Equal(t, "a", first.Owner)

				none, err := store.Find(tx, testCollection, func(r *record) bool { return false })
				require.NoError(t, err)
				require.Nil(t, none)

				all, err := store.FindAll(tx, testCollection, func(r *record) bool {
					return contains(r.Codes, "shared")
				})
				require.NoError(t, err)
				require.Len(t, all, 2)
				return nil
			}))

			require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
				removed, err := store.Delete[record](tx, testCollection, "c")
				require.NoError(t, err)
				require.Equal(t, "c", removed.Owner)

				again, err := store.Delete[record](tx, testCollection, "c")
				require.NoError(t, err)
				require.Nil(t, again)
				return nil
			}))
		})
	}
}

func TestDeleteAllRemovesUndecodable(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, record{Owner: "a"}, record{Owner: "b", Codes: []string{"x"}})
			require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
				return tx.Put(testCollection, "garbage", []byte("{not json"))
			}))

			var removed int
			require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
				var err error
				removed, err = store.DeleteAll(tx, testCollection, func(r *record) bool {
					return len(r.Codes) == 0
				})
				return err
			}))
			require.Equal(t, 2, removed)

			require.NoError(t, s.View(ctx, func(tx store.Tx) error {
				all, err := store.FindAll(tx, testCollection, func(*record) bool { return true })
				require.NoError(t, err)
				require.Len(t, all, 1)
				require.Equal(t, "b", all[0].Owner)
				return nil
			}))
		})
	}
}

func TestUpdateRollsBack(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, record{Owner: "a", Codes: []string{"a1"}})

			failure := fmt.Errorf("boom")
			err := s.Update(ctx, func(tx store.Tx) error {
				if _, err := store.Delete[record](tx, testCollection, "a"); err != nil {
					return err
				}
				if err := store.Put(tx, store.CollectionTokens, "a", &record{Owner: "a"}); err != nil {
					return err
				}
				return failure
			})
			require.ErrorIs(t, err, failure)

			require.NoError(t, s.View(ctx, func(tx store.Tx) error {
				kept, err := store.Get[record](tx, testCollection, "a")
				require.NoError(t, err)
				require.NotNil(t, kept)
				tok, err := store.Get[record](tx, store.CollectionTokens, "a")
				require.NoError(t, err)
				require.Nil(t, tok)
				return nil
			}))
		})
	}
}

func TestJoinedTransactions(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(ctx, func(tx store.Tx) error {
				inner := store.WithTx(ctx, tx)
				// a nested Update must reuse tx rather than deadlock
				return s.Update(inner, func(nested store.Tx) error {
					require.True(t, nested.Writable())
					return store.Put(nested, testCollection, "n", &record{Owner: "n"})
				})
			})
			require.NoError(t, err)

			err = s.View(ctx, func(tx store.Tx) error {
				return s.Update(store.WithTx(ctx, tx), func(store.Tx) error { return nil })
			})
			require.ErrorIs(t, err, serrors.ErrReadOnlyTx)

			err = s.View(ctx, func(tx store.Tx) error {
				return tx.Put(testCollection, "x", []byte("{}"))
			})
			require.ErrorIs(t, err, serrors.ErrReadOnlyTx)
			require.NoError(t, s.Flush())
		})
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.dat")

	s, err := boltstore.Open(path)
	require.NoError(t, err)
	put(t, s, record{Owner: "a", Codes: []string{"a1"}})
	require.NoError(t, s.Close())

	s, err = boltstore.Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := store.Get[record](tx, testCollection, "a")
		require.NoError(t, err)
		require.Equal(t, []string{"a1"}, got.Codes)
		return nil
	}))
}

func TestMemstoreClosed(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.Close())
	err := s.View(context.Background(), func(store.Tx) error { return nil })
	require.ErrorIs(t, err, serrors.ErrStoreClosed)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
