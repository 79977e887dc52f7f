package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/oauth-lite/internal/config"
)

const testYAML = `
server:
  port: "8081"
  log_level: debug
storage:
  driver: memory
login:
  backend: static
  ldap:
    url: ldap://directory:389
    bind_dn: ou=people,dc=corp
    attrs: [mail, memberOf]
  users:
    alice:
      password_hash: "$2a$10$abc"
      attributes:
        mail: [alice@example.com]
oauth:
  clients:
    webapp:
      url: https://app.example/cb
    cli:
      url: http://localhost:9000/cb
      scope: read write
      secret: s3cret
security:
  strict_session_cookies: false
  session_max_age: 2h
  login_rate_limit:
    per_minute: 3
    burst: 2
cors:
  allowed_origins: [https://app.example]
`

func TestParse(t *testing.T) {
	f, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)
	c := config.FromFile(f)

	require.Equal(t, ":8081", c.GetPort())
	require.Equal(t, "debug", c.GetLogLevel())
	require.Equal(t, config.StorageDriverMemory, c.GetStorageDriver())
	require.Equal(t, config.LoginBackendStatic, c.GetLoginBackend())
	require.False(t, c.GetStrictSessionCookies())
	require.Equal(t, 2*time.Hour, c.GetMaxSessionAge())

	perMinute, burst := c.GetLoginRateLimit()
	require.Equal(t, 3, perMinute)
	require.Equal(t, 2, burst)
	require.True(t, c.GetEnableRateLimiting())

	ldap := c.GetLDAP()
	require.Equal(t, "ldap://directory:389", ldap.URL)
	require.Equal(t, "ou=people,dc=corp", ldap.BindDN)
	require.Equal(t, "cn", ldap.UserDN)
	require.Equal(t, []string{"mail", "memberOf"}, ldap.Attributes)

	users := c.GetStaticUsers()
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, []string{"alice@example.com"}, users[0].Attributes["mail"])

	clients := c.GetClients()
	require.Equal(t, []config.ClientConfig{
		{ID: "cli", RedirectURI: "http://localhost:9000/cb", Scope: "read write", Secret: "s3cret"},
		{ID: "webapp", RedirectURI: "https://app.example/cb", Scope: config.DefaultClientScope},
	}, clients)

	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://app.example"))
}

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, ":3030", c.GetPort())
	require.Equal(t, "/login", c.GetLoginPath())
	require.Equal(t, ".oauth.dat", c.GetDataFile())
	require.True(t, c.GetStrictSessionCookies())
	require.Equal(t, time.Hour, c.GetAuthCodeTimeout())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.Equal(t, "ldap://localhost:389", c.GetLDAP().URL)
	require.Equal(t, "ou=users,dc=example,dc=com", c.GetLDAP().BindDN)
	require.Empty(t, c.GetClients())
}

func TestEnvironmentAndOverrides(t *testing.T) {
	t.Setenv(config.PortEnvVar, "9999")
	t.Setenv(config.ClientIDsEnvVar, "webapp=https://app.example/cb, other=https://other.example/cb")
	t.Setenv(config.StrictSessionCookiesEnvVar, "false")
	t.Setenv(config.LDAPAttributesVar, "mail,uid")

	c := config.New()
	require.Equal(t, ":9999", c.GetPort())
	require.False(t, c.GetStrictSessionCookies())
	require.Equal(t, []string{"mail", "uid"}, c.GetLDAP().Attributes)

	clients := c.GetClients()
	require.Len(t, clients, 2)
	require.Equal(t, "other", clients[0].ID)
	require.Equal(t, "https://app.example/cb", clients[1].RedirectURI)

	c.Override(config.PortEnvVar, "7000")
	require.Equal(t, ":7000", c.GetPort())
}

func TestLoginRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		perMinute int
		enabled   bool
	}{
		{"default", "security: {}", 10, true},
		{"configured", "security:\n  login_rate_limit:\n    per_minute: 4", 4, true},
		{"disabled", "security:\n  login_rate_limit:\n    per_minute: 0", 0, false},
		{"only burst", "security:\n  login_rate_limit:\n    burst: 7", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := config.Parse([]byte(tt.yaml))
			require.NoError(t, err)
			c := config.FromFile(f)

			perMinute, _ := c.GetLoginRateLimit()
			require.Equal(t, tt.perMinute, perMinute)
			require.Equal(t, tt.enabled, c.GetEnableRateLimiting())
		})
	}

	t.Setenv(config.LoginRateLimitEnvVar, "0")
	f, err := config.Parse([]byte("security:\n  login_rate_limit:\n    per_minute: 4"))
	require.NoError(t, err)
	require.False(t, config.FromFile(f).GetEnableRateLimiting())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth.yml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8081", c.GetPort())

	_, err = config.Load(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}
