//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
	"testing"

	"golang.org/x/sys/windows"
)

func TestQuietHidesConsole(t *testing.T) {
	cmd := Command("cmd.exe", "/c", "echo", "test")
	if cmd.SysProcAttr == nil {
		t.Fatal("SysProcAttr = nil after Command()")
	}
	if !cmd.SysProcAttr.HideWindow {
		t.Fatal("HideWindow = false, want true")
	}
	if cmd.SysProcAttr.CreationFlags&windows.CREATE_NO_WINDOW == 0 {
		t.Fatalf("CreationFlags = %#x, want CREATE_NO_WINDOW set", cmd.SysProcAttr.CreationFlags)
	}
}

func TestQuietAddsToExistingFlags(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/c", "echo", "test")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}

	Quiet(Quiet(cmd))

	want := uint32(syscall.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW)
	if cmd.SysProcAttr.CreationFlags != want {
		t.Fatalf("CreationFlags = %#x, want %#x", cmd.SysProcAttr.CreationFlags, want)
	}
	if Quiet(nil) != nil {
		t.Fatal("Quiet(nil) != nil")
	}
}
