//go:build !windows

package procutil

import (
	"os/exec"
	"testing"
)

func TestQuietLeavesCommandUntouched(t *testing.T) {
	cmd := exec.Command("ffmpeg", "-version")
	if got := Quiet(cmd); got != cmd {
		t.Fatalf("Quiet() = %p, want the same command %p", got, cmd)
	}
	if cmd.SysProcAttr != nil {
		t.Fatalf("SysProcAttr = %+v, want nil", cmd.SysProcAttr)
	}
	if Quiet(nil) != nil {
		t.Fatal("Quiet(nil) != nil")
	}
}

func TestCommandKeepsArguments(t *testing.T) {
	cmd := Command("ffmpeg", "-i", "in.wav", "out.mp3")
	want := []string{"ffmpeg", "-i", "in.wav", "out.mp3"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("Args = %v, want %v", cmd.Args, want)
		}
	}
}
