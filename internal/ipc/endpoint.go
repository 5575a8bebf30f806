package ipc

import (
	"log/slog"
	"os"
	"strings"

	"aigcpanel/internal/userutil"
)

// EndpointEnv overrides DefaultEndpoint when it passes validation.
const EndpointEnv = "AIGCPANEL_PIPE"

const endpointNamePrefix = "aigcpanel-"

// DefaultEndpoint returns the endpoint the running instance listens on. If
// AIGCPANEL_PIPE is set and passes validation its value is used; otherwise a
// per-user endpoint is built from the current username.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	return EndpointForName(userutil.CurrentUsername())
}

// EndpointForName builds the platform endpoint for a short name such as the
// configured pipe name. The name is sanitized like a username.
func EndpointForName(name string) string {
	return endpointFor(endpointNamePrefix + userutil.SanitizeUsername(name))
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(EndpointEnv))
	if value == "" {
		return "", false
	}
	if !endpointPattern.MatchString(value) {
		slog.Warn("[ipc] "+EndpointEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}
