package store

import (
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

var errStop = errors.New("stop iteration")

// Get decodes the record stored under key. A missing record is (nil, nil).
func Get[T any](tx Tx, collection, key string) (*T, error) {
	data, err := tx.Get(collection, key)
	if err != nil {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[store.Get] %s/%s", collection, key))
	}
	if data == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[store.Get] decoding %s/%s", collection, key))
	}
	return &v, nil
}

// Put encodes v and stores it under key, replacing any previous record.
func Put[T any](tx Tx, collection, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return serrors.Service(pkgerrors.Wrapf(err, "[store.Put] encoding %s/%s", collection, key))
	}
	if err := tx.Put(collection, key, data); err != nil {
		return serrors.Service(pkgerrors.Wrapf(err, "[store.Put] %s/%s", collection, key))
	}
	return nil
}

// Delete removes key and returns the record it held, or nil when absent.
func Delete[T any](tx Tx, collection, key string) (*T, error) {
	v, err := Get[T](tx, collection, key)
	if err != nil || v == nil {
		return nil, err
	}
	if err := tx.Delete(collection, key); err != nil {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[store.Delete] %s/%s", collection, key))
	}
	return v, nil
}

// Find returns the first record, in key order, for which match is true.
// Entries that cannot be decoded are skipped.
func Find[T any](tx Tx, collection string, match func(*T) bool) (*T, error) {
	var found *T
	err := tx.ForEach(collection, func(key string, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Debug().Err(err).Str("collection", collection).Str("key", key).Msg("skipping undecodable record")
			return nil
		}
		if match(&v) {
			found = &v
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[store.Find] %s", collection))
	}
	return found, nil
}

// FindAll returns every record for which match is true, in key order.
func FindAll[T any](tx Tx, collection string, match func(*T) bool) ([]*T, error) {
	var found []*T
	err := tx.ForEach(collection, func(key string, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil
		}
		if match(&v) {
			found = append(found, &v)
		}
		return nil
	})
	if err != nil {
		return nil, serrors.Service(pkgerrors.Wrapf(err, "[store.FindAll] %s", collection))
	}
	return found, nil
}

// DeleteAll removes every record for which match is true, along with any entry
// that no longer decodes. It returns the number of entries removed.
func DeleteAll[T any](tx Tx, collection string, match func(*T) bool) (int, error) {
	var keys []string
	err := tx.ForEach(collection, func(key string, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil || match(&v) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, serrors.Service(pkgerrors.Wrapf(err, "[store.DeleteAll] %s", collection))
	}
	for _, key := range keys {
		if err := tx.Delete(collection, key); err != nil {
			return 0, serrors.Service(pkgerrors.Wrapf(err, "[store.DeleteAll] %s/%s", collection, key))
		}
	}
	return len(keys), nil
}
