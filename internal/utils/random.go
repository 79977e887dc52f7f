package utils

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

// RandomToken returns n bytes from the system CSPRNG, base64 (URL alphabet)
// encoded. Used for session ids, codes and tokens.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", serrors.Service(errors.Wrap(err, "[utils.RandomToken]"))
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
