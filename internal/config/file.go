package config

import "time"

// File mirrors config.yml.
type File struct {
	Server   ServerFile   `yaml:"server"`
	Storage  StorageFile  `yaml:"storage"`
	Login    LoginFile    `yaml:"login"`
	OAuth    OAuthFile    `yaml:"oauth"`
	Security SecurityFile `yaml:"security"`
	Cors     CorsFile     `yaml:"cors"`
}

type ServerFile struct {
	Port      string `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LoginPath string `yaml:"login_path"`
}

type StorageFile struct {
	Driver string `yaml:"driver"` // bolt or memory
	Path   string `yaml:"path"`
}

type LoginFile struct {
	Backend  string              `yaml:"backend"` // ldap, static or upstream
	LDAP     LDAPFile            `yaml:"ldap"`
	Users    map[string]UserFile `yaml:"users"`
	Upstream UpstreamFile        `yaml:"upstream"`
}

type LDAPFile struct {
	URL        string        `yaml:"url"`
	BindDN     string        `yaml:"bind_dn"`
	UserDN     string        `yaml:"user_dn"`
	Attributes []string      `yaml:"attrs"`
	Timeout    time.Duration `yaml:"timeout"`
}

type UserFile struct {
	PasswordHash string              `yaml:"password_hash"`
	Attributes   map[string][]string `yaml:"attributes"`
}

type UpstreamFile struct {
	Issuer       string        `yaml:"issuer"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scopes       []string      `yaml:"scopes"`
	Timeout      time.Duration `yaml:"timeout"`
}

type OAuthFile struct {
	Clients map[string]ClientFile `yaml:"clients"`
}

type ClientFile struct {
	URL    string `yaml:"url"`
	Scope  string `yaml:"scope"`
	Secret string `yaml:"secret"`
}

type SecurityFile struct {
	StrictSessionCookies *bool         `yaml:"strict_session_cookies"`
	SessionMaxAge        time.Duration `yaml:"session_max_age"`
	JanitorInterval      time.Duration `yaml:"janitor_interval"`
	LoginRateLimit       RateLimitFile `yaml:"login_rate_limit"`
}

// RateLimitFile configures login throttling. An explicit per_minute of 0
// disables it.
type RateLimitFile struct {
	PerMinute *int `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
}

type CorsFile struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}
