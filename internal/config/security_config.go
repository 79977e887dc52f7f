package config

import (
	"strconv"
	"time"
)

const (
	StrictSessionCookiesEnvVar = "STRICT_SESSION_COOKIES"
	SessionMaxAgeEnvVar        = "SESSION_MAX_AGE"
	LoginRateLimitEnvVar       = "LOGIN_RATE_LIMIT"
)

type SecurityConfig interface {
	GetStrictSessionCookies() bool
	GetMaxSessionAge() time.Duration
	GetJanitorInterval() time.Duration
	GetEnableRateLimiting() bool
	GetLoginRateLimit() (perMinute int, burst int)
}

type Security struct{ src *source }

var _ SecurityConfig = Security{}

// GetStrictSessionCookies reports whether a session cookie that fails
// verification rejects the request instead of starting a new session.
func (s Security) GetStrictSessionCookies() bool {
	if v := s.src.lookup(StrictSessionCookiesEnvVar, "", ""); v != "" {
		strict, err := strconv.ParseBool(v)
		return err != nil || strict
	}
	if s.src.file.Security.StrictSessionCookies != nil {
		return *s.src.file.Security.StrictSessionCookies
	}
	return true
}

func (s Security) GetMaxSessionAge() time.Duration {
	if v := s.src.lookup(SessionMaxAgeEnvVar, "", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if s.src.file.Security.SessionMaxAge > 0 {
		return s.src.file.Security.SessionMaxAge
	}
	return 30 * 24 * time.Hour
}

func (s Security) GetJanitorInterval() time.Duration {
	if s.src.file.Security.JanitorInterval > 0 {
		return s.src.file.Security.JanitorInterval
	}
	return 10 * time.Minute
}

func (s Security) GetEnableRateLimiting() bool {
	perMinute, _ := s.GetLoginRateLimit()
	return perMinute > 0
}

// GetLoginRateLimit returns login attempts allowed per minute per client
// address. A per_minute of 0 in the file or LOGIN_RATE_LIMIT=0 disables
// limiting.
func (s Security) GetLoginRateLimit() (int, int) {
	perMinute, burst := 10, 5
	file := s.src.file.Security.LoginRateLimit
	if file.PerMinute != nil {
		perMinute = *file.PerMinute
	}
	if file.Burst > 0 {
		burst = file.Burst
	}
	if v := s.src.lookup(LoginRateLimitEnvVar, "", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			perMinute = n
		}
	}
	if perMinute < 0 {
		perMinute = 0
	}
	return perMinute, burst
}
