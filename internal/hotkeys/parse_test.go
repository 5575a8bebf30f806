package hotkeys

import (
	"strings"
	"testing"
)

func withCommandOrControl(t *testing.T, super bool) {
	t.Helper()
	prev := commandOrControlIsSuper
	commandOrControlIsSuper = super
	t.Cleanup(func() { commandOrControlIsSuper = prev })
}

func TestParseBindingSuccess(t *testing.T) {
	withCommandOrControl(t, false)
	tests := []struct {
		name     string
		spec     string
		wantNorm string
		wantMods Modifier
		wantKey  string
	}{
		{name: "function key", spec: "Ctrl+Shift+F12", wantNorm: "Ctrl+Shift+F12", wantMods: ModCtrl | ModShift, wantKey: "F12"},
		{name: "letter lower case", spec: "ctrl+a", wantNorm: "Ctrl+A", wantMods: ModCtrl, wantKey: "A"},
		{name: "digit", spec: "Alt+3", wantNorm: "Alt+3", wantMods: ModAlt, wantKey: "3"},
		{name: "named key alias", spec: "Ctrl+Return", wantNorm: "Ctrl+ENTER", wantMods: ModCtrl, wantKey: "ENTER"},
		{name: "backtick", spec: "Ctrl+`", wantNorm: "Ctrl+`", wantMods: ModCtrl, wantKey: "`"},
		{name: "command or control", spec: "CommandOrControl+Shift+H", wantNorm: "Ctrl+Shift+H", wantMods: ModCtrl | ModShift, wantKey: "H"},
		{name: "cmd or ctrl short form", spec: "CmdOrCtrl+H", wantNorm: "Ctrl+H", wantMods: ModCtrl, wantKey: "H"},
		{name: "modifier order is canonical", spec: "Shift+Alt+Ctrl+F1", wantNorm: "Ctrl+Alt+Shift+F1", wantMods: ModCtrl | ModAlt | ModShift, wantKey: "F1"},
		{name: "duplicate modifier collapses", spec: "Ctrl+Control+K", wantNorm: "Ctrl+K", wantMods: ModCtrl, wantKey: "K"},
		{name: "whitespace trimmed", spec: "  Ctrl + Shift + F20 ", wantNorm: "Ctrl+Shift+F20", wantMods: ModCtrl | ModShift, wantKey: "F20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBinding(tt.spec)
			if err != nil {
				t.Fatalf("ParseBinding(%q) error = %v", tt.spec, err)
			}
			if b.Normalized() != tt.wantNorm {
				t.Fatalf("Normalized() = %q, want %q", b.Normalized(), tt.wantNorm)
			}
			if b.Modifiers() != tt.wantMods {
				t.Fatalf("Modifiers() = %v, want %v", b.Modifiers(), tt.wantMods)
			}
			if b.Key() != tt.wantKey {
				t.Fatalf("Key() = %q, want %q", b.Key(), tt.wantKey)
			}
		})
	}
}

func TestParseBindingCommandOrControlOnMac(t *testing.T) {
	withCommandOrControl(t, true)
	b, err := ParseBinding("CommandOrControl+Shift+H")
	if err != nil {
		t.Fatalf("ParseBinding() error = %v", err)
	}
	if b.Normalized() != "Shift+Cmd+H" {
		t.Fatalf("Normalized() = %q, want %q", b.Normalized(), "Shift+Cmd+H")
	}
	if b.Modifiers() != ModShift|ModSuper {
		t.Fatalf("Modifiers() = %v, want Shift|Super", b.Modifiers())
	}
}

func TestParseBindingErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantMsg string
	}{
		{name: "empty", spec: "  ", wantMsg: "empty"},
		{name: "key only", spec: "H", wantMsg: "modifiers and key"},
		{name: "unknown modifier", spec: "Hyper+H", wantMsg: "unknown modifier"},
		{name: "unknown key", spec: "Ctrl+PageUp", wantMsg: "unknown key"},
		{name: "function key out of range", spec: "Ctrl+F21", wantMsg: "unknown key"},
		{name: "missing key", spec: "Ctrl+", wantMsg: "missing hotkey key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBinding(tt.spec)
			if err == nil {
				t.Fatalf("ParseBinding(%q) expected error", tt.spec)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("ParseBinding(%q) error = %q, want substring %q", tt.spec, err.Error(), tt.wantMsg)
			}
		})
	}
}
