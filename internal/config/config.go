package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "config.yml"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	LoginConfig
	Override(envVar, value string)
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFile() string
	GetStorageDriver() string
	GetLoginPath() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// source is shared by every section of a loaded configuration. Values resolve
// in order: explicit override (command line), environment, file, default.
type source struct {
	file      File
	overrides map[string]string
}

func (s *source) lookup(envVar, fileValue, defaultValue string) string {
	if v, ok := s.overrides[envVar]; ok && v != "" {
		return v
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Login
	src *source
}

// New returns a configuration driven by environment variables and defaults only.
func New() Config {
	return newConfig(File{})
}

// Load reads a YAML configuration file. A missing file at the default location
// is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultFile {
			return New(), nil
		}
		return nil, errors.Wrapf(err, "[config.Load] reading %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "[config.Load] parsing %s", path)
	}
	return newConfig(f), nil
}

// Parse decodes YAML configuration content.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, err
	}
	return f, nil
}

func newConfig(f File) *mainConfig {
	src := &source{file: f, overrides: make(map[string]string)}
	return &mainConfig{
		EnvVars:  EnvVars{src},
		Cors:     Cors{src},
		OAuth:    OAuth{src},
		Security: Security{src},
		Login:    Login{src},
		src:      src,
	}
}

// FromFile builds a configuration from an already decoded File.
func FromFile(f File) Config {
	return newConfig(f)
}

// Override sets a value that takes precedence over environment and file. The key
// is the environment variable name of the setting.
func (c *mainConfig) Override(envVar, value string) {
	c.src.overrides[envVar] = value
}
