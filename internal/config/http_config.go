package config

import "time"

type HTTPConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

// GetBaseURL returns the base URL of the business-management API
// (e.g., "https://api.example.com"). All endpoint paths are resolved
// relative to it.
func (HTTP) GetBaseURL() string {
	return GetEnv("BASE_URL", "http://localhost:8080")
}

func (HTTP) GetRequestTimeout() time.Duration {
	return 30 * time.Second
}
