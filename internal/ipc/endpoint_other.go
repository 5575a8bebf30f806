//go:build !windows

package ipc

import (
	"os"
	"path/filepath"
	"regexp"
)

// endpointPattern accepts absolute socket paths whose file name carries the
// application prefix.
var endpointPattern = regexp.MustCompile(`^/([^/\x00]+/)*aigcpanel-[A-Za-z0-9._-]{1,128}\.sock$`)

func endpointFor(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}
