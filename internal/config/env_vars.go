package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appNameVar    = "APP_NAME"
	baseURLVar    = "MEETINGS_API_URL"
	folderEnvVar  = "MEETCTL_DATA_FOLDER"
	storeKeyVar   = "MEETCTL_STORE_KEY"
	logLevelVar   = "LOG_LEVEL"
	defaultFolder = ".meetctl"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "meetctl")
}

// GetBaseURL returns the backend base URL (e.g., "https://meetings.example.com").
// Trailing slashes are removed so API paths can be appended directly.
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8000"), "/")
}

// GetDataFolder returns the folder holding the persisted credential pair.
func (EnvVars) GetDataFolder() string {
	if folder := GetEnv(folderEnvVar, ""); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultFolder
	}
	return filepath.Join(home, defaultFolder)
}

// GetStoreKey returns the passphrase used to seal the credential file. Empty
// means the file is written in the clear.
func (EnvVars) GetStoreKey() string {
	return GetEnv(storeKeyVar, "")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
