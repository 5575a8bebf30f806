package hotkeys

import (
	"fmt"
	"runtime"
	"strings"
)

// commandOrControlIsSuper reports whether the "CommandOrControl" family maps
// to the Command key. Overridden in tests.
var commandOrControlIsSuper = runtime.GOOS == "darwin"

var modifierByName = map[string]Modifier{
	"CTRL":    ModCtrl,
	"CONTROL": ModCtrl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
	"OPTION":  ModAlt,
	"WIN":     ModSuper,
	"SUPER":   ModSuper,
	"META":    ModSuper,
	"CMD":     ModSuper,
	"COMMAND": ModSuper,
}

var namedKeys = map[string]string{
	"SPACE":     "SPACE",
	"TAB":       "TAB",
	"ENTER":     "ENTER",
	"RETURN":    "ENTER",
	"ESC":       "ESC",
	"ESCAPE":    "ESC",
	"DELETE":    "DELETE",
	"LEFT":      "LEFT",
	"RIGHT":     "RIGHT",
	"UP":        "UP",
	"DOWN":      "DOWN",
	"`":         "`",
	"BACKQUOTE": "`",
	"GRAVE":     "`",
}

// modifierOrder fixes the order modifiers appear in normalized strings.
var modifierOrder = []Modifier{ModCtrl, ModAlt, ModShift, ModSuper}

// ParseBinding parses an accelerator such as "CommandOrControl+Shift+H" or
// "Ctrl+F12". At least one modifier is required.
func ParseBinding(spec string) (Binding, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Binding{}, fmt.Errorf("hotkey spec is empty")
	}

	parts := strings.Split(raw, "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("hotkey must include modifiers and key: %s", raw)
	}

	var modifiers Modifier
	for _, token := range parts[:len(parts)-1] {
		mod, err := parseModifier(token)
		if err != nil {
			return Binding{}, fmt.Errorf("%w in hotkey %q", err, raw)
		}
		modifiers |= mod
	}
	if modifiers == 0 {
		return Binding{}, fmt.Errorf("at least one modifier is required: %q", raw)
	}

	key, err := parseKey(parts[len(parts)-1])
	if err != nil {
		return Binding{}, err
	}

	names := make([]string, 0, len(modifierOrder)+1)
	for _, mod := range modifierOrder {
		if modifiers&mod != 0 {
			names = append(names, modifierName(mod))
		}
	}
	names = append(names, key)
	return Binding{
		modifiers:  modifiers,
		key:        key,
		normalized: strings.Join(names, "+"),
	}, nil
}

func parseModifier(token string) (Modifier, error) {
	name := strings.ToUpper(strings.TrimSpace(token))
	switch name {
	case "COMMANDORCONTROL", "CMDORCTRL":
		if commandOrControlIsSuper {
			return ModSuper, nil
		}
		return ModCtrl, nil
	}
	mod, ok := modifierByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown modifier %q", token)
	}
	return mod, nil
}

func parseKey(raw string) (string, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return "", fmt.Errorf("missing hotkey key token")
	}
	if key, ok := namedKeys[token]; ok {
		return key, nil
	}
	if len(token) == 1 {
		ch := token[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return token, nil
		}
	}
	if n, ok := functionKeyNumber(token); ok && n >= 1 && n <= 20 {
		return token, nil
	}
	return "", fmt.Errorf("unknown key %q in hotkey spec", raw)
}

// functionKeyNumber parses "F1".."F20" style tokens.
func functionKeyNumber(token string) (int, bool) {
	if len(token) < 2 || len(token) > 3 || token[0] != 'F' {
		return 0, false
	}
	n := 0
	for _, ch := range token[1:] {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

func modifierName(mod Modifier) string {
	switch mod {
	case ModCtrl:
		return "Ctrl"
	case ModShift:
		return "Shift"
	case ModAlt:
		return "Alt"
	case ModSuper:
		if commandOrControlIsSuper {
			return "Cmd"
		}
		return "Super"
	default:
		return "Mod"
	}
}
