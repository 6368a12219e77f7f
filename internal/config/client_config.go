package config

import "time"

type Client struct{}

var _ ClientConfig = Client{}

const (
	httpTimeoutVar        = "HTTP_TIMEOUT"
	conflictCheckDelayVar = "CONFLICT_CHECK_DELAY"
)

func (Client) GetHTTPTimeout() time.Duration {
	return GetDuration(httpTimeoutVar, 30*time.Second)
}

// GetConflictCheckDelay is the quiet period after the last draft edit before
// a conflict check is sent.
func (Client) GetConflictCheckDelay() time.Duration {
	return GetDuration(conflictCheckDelayVar, 600*time.Millisecond)
}

func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
