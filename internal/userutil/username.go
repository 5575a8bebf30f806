// Package userutil derives per-user names for the bridge endpoint and the
// single-instance lock.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// currentUserFn is replaced in tests.
var currentUserFn = user.Current

// SanitizeUsername maps a username onto the characters allowed in endpoint
// and lock names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// CurrentUsername returns USERNAME, then USER, then the OS account name.
// It may return "".
func CurrentUsername() string {
	for _, env := range []string{"USERNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if current, err := currentUserFn(); err == nil {
		return current.Username
	}
	return ""
}

// InstanceName is the per-user name shared by the endpoint and the lock,
// e.g. "aigcpanel-alice".
func InstanceName(prefix string) string {
	return prefix + SanitizeUsername(CurrentUsername())
}
