package sessions

import (
	"time"

	"github.com/jrsteele09/oauth-lite/users"
)

// Session is the server-side state of one browser. Its id doubles as the
// resource owner id of every credential issued through it.
type Session struct {
	ID        string      `json:"id"`
	User      *users.User `json:"user,omitempty"`
	Timestamp int64       `json:"ts"` // last touched, unix milliseconds
}

// LoggedIn reports whether a user has authenticated on this session.
func (s *Session) LoggedIn() bool {
	return s.User != nil
}

// Touch records t as the last time the session was used.
func (s *Session) Touch(t time.Time) {
	s.Timestamp = t.UnixMilli()
}

// LastSeen returns the last touched time.
func (s *Session) LastSeen() time.Time {
	return time.UnixMilli(s.Timestamp)
}
