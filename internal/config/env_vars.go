package config

import (
	"fmt"
	"strings"
)

const (
	PortEnvVar          = "PORT"
	AppNameEnvVar       = "APP_NAME"
	EnvEnvVar           = "ENV"
	LogLevelEnvVar      = "LOG_LEVEL"
	DataFileEnvVar      = "DATA_FILE"
	StorageDriverEnvVar = "STORAGE_DRIVER"
	LoginPathEnvVar     = "LOGIN_PATH"
)

const (
	StorageDriverBolt   = "bolt"
	StorageDriverMemory = "memory"
)

type EnvVars struct{ src *source }

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.lookup(PortEnvVar, e.src.file.Server.Port, "3030")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.lookup(AppNameEnvVar, "", "OAuth Lite")
}

func (e EnvVars) GetEnv() string {
	return e.src.lookup(EnvEnvVar, e.src.file.Server.Env, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.lookup(LogLevelEnvVar, e.src.file.Server.LogLevel, "info")
}

// GetDataFile is the bbolt database path.
func (e EnvVars) GetDataFile() string {
	return e.src.lookup(DataFileEnvVar, e.src.file.Storage.Path, ".oauth.dat")
}

func (e EnvVars) GetStorageDriver() string {
	return e.src.lookup(StorageDriverEnvVar, e.src.file.Storage.Driver, StorageDriverBolt)
}

// GetLoginPath is where unauthenticated authorize requests are sent.
func (e EnvVars) GetLoginPath() string {
	return e.src.lookup(LoginPathEnvVar, e.src.file.Server.LoginPath, "/login")
}

// splitList splits a comma separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
