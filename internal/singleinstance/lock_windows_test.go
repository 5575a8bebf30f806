//go:build windows

package singleinstance

import "testing"

// Named mutexes have no directory to redirect.
func useTempLockDir(t *testing.T) string {
	t.Helper()
	return ""
}
