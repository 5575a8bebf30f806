// Package singleinstance keeps a second copy of the application from
// starting for the same user. The loser connects to the winner's bridge
// endpoint instead (app.activate).
package singleinstance

import (
	"errors"

	"aigcpanel/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

const namePrefix = "aigcpanel-"

// DefaultName returns the per-user lock name, e.g. "aigcpanel-alice".
// TryLock maps it to the platform object (named mutex or lock file).
func DefaultName() string {
	return userutil.InstanceName(namePrefix)
}
