//go:build windows

package ipc

import "regexp"

var endpointPattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\aigcpanel-[a-z0-9._-]{1,128}$`)

const pipePrefix = `\\.\pipe\`

func endpointFor(name string) string {
	return pipePrefix + name
}
