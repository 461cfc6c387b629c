package api

import (
	"os"
	"strings"
)

const (
	// DefaultBaseURL is used when neither the environment nor the config
	// file provide a backend address.
	DefaultBaseURL = "http://localhost:8000/api"

	// BaseURLEnv overrides the backend address.
	BaseURLEnv = "AURALYNX_API_URL"
)

// BaseURLFromEnv returns the backend base URL from AURALYNX_API_URL, falling
// back to DefaultBaseURL. Trailing slashes are stripped.
func BaseURLFromEnv() string {
	return NormalizeBase(os.Getenv(BaseURLEnv))
}

// NormalizeBase strips trailing slashes and substitutes DefaultBaseURL for an
// empty value.
func NormalizeBase(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return DefaultBaseURL
	}
	return trimmed
}

// BuildURL joins base and path with exactly one slash between them.
func BuildURL(base, path string) string {
	cleaned := "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	return NormalizeBase(base) + cleaned
}
