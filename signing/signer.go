package signing

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/store"
)

// KeyField is the key of the signing secret in the server collection.
const KeyField = "signing"

// KeyLength is the size of the HMAC secret in bytes.
const KeyLength = 32

// Signer produces and checks integrity tags over records.
type Signer interface {
	Sign(record any) (string, error)
	Verify(record any, tag string) error
}

// HMACSigner tags the JSON encoding of a record with HMAC-SHA256.
type HMACSigner struct {
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

type signingKey struct {
	Secret []byte `json:"secret"`
}

// NewHMACSigner creates a signer over an explicit secret.
func NewHMACSigner(secret []byte) *HMACSigner {
	return &HMACSigner{secret: append([]byte(nil), secret...)}
}

// LoadOrCreate returns a signer using the secret persisted in the server
// collection, generating and persisting a new one on first use.
func LoadOrCreate(ctx context.Context, db store.Store) (*HMACSigner, error) {
	var secret []byte
	err := db.Update(ctx, func(tx store.Tx) error {
		existing, err := store.Get[signingKey](tx, store.CollectionServer, KeyField)
		if err != nil {
			return err
		}
		if existing != nil && len(existing.Secret) == KeyLength {
			secret = existing.Secret
			return nil
		}
		secret = make([]byte, KeyLength)
		if _, err := rand.Read(secret); err != nil {
			return serrors.Service(errors.Wrap(err, "[signing.LoadOrCreate] generating key"))
		}
		return store.Put(tx, store.CollectionServer, KeyField, &signingKey{Secret: secret})
	})
	if err != nil {
		return nil, err
	}
	return NewHMACSigner(secret), nil
}

func (s *HMACSigner) Sign(record any) (string, error) {
	mac, err := s.mac(record)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(mac), nil
}

// Verify recomputes the tag for record and compares it in constant time.
func (s *HMACSigner) Verify(record any, tag string) error {
	given, err := base64.URLEncoding.Strict().DecodeString(tag)
	if err != nil {
		return serrors.ErrSignatureMismatch
	}
	expected, err := s.mac(record)
	if err != nil {
		return err
	}
	if !hmac.Equal(given, expected) {
		return serrors.ErrSignatureMismatch
	}
	return nil
}

func (s *HMACSigner) mac(record any) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, serrors.Service(errors.Wrap(err, "[HMACSigner] encoding record"))
	}
	h := hmac.New(sha256.New, s.secret)
	h.Write(data)
	return h.Sum(nil), nil
}
