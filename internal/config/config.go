package config

import "time"

type Config interface {
	EnvConfig
	ClientConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetStoreKey() string
	GetLogLevel() string
	GetEnv() string
}

// ClientConfig holds tuning values for the HTTP session and conflict checks.
type ClientConfig interface {
	GetHTTPTimeout() time.Duration
	GetConflictCheckDelay() time.Duration
}

type mainConfig struct {
	EnvVars
	Client
}

func New() Config {
	return mainConfig{}
}
