//go:build !windows

package procutil

import "os/exec"

// Quiet returns cmd unchanged. Only Windows allocates consoles for children.
func Quiet(cmd *exec.Cmd) *exec.Cmd { return cmd }
