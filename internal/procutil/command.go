package procutil

import "os/exec"

// Command is exec.Command followed by Quiet.
func Command(name string, args ...string) *exec.Cmd {
	return Quiet(exec.Command(name, args...))
}
