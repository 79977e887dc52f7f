package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
)

const limiterIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter keeps one token bucket per client address.
type loginLimiter struct {
	lock      sync.Mutex
	visitors  map[string]*visitor
	interval  time.Duration
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newLoginLimiter(perMinute, burst int) *loginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &loginLimiter{
		visitors: make(map[string]*visitor),
		interval: time.Minute / time.Duration(perMinute),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *loginLimiter) allow(addr string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTimeout {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTimeout {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.visitors[addr] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// LoginRateLimitMiddleware throttles credential submissions per client
// address. Requests without a password field pass untouched.
func (s *Server) LoginRateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if s.limiter == nil || r.PostFormValue("password") == "" {
			next(w, r)
			return
		}

		addr := clientAddr(r)
		if !s.limiter.allow(addr) {
			log.Ctx(r.Context()).Warn().
				Str("remote_addr", addr).
				Msg(serrors.ErrLoginThrottled.Error())
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(s.limiter.interval.Seconds()))))
			http.Error(w, serrors.ErrLoginThrottled.Error(), http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
