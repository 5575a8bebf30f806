//go:build windows

package hotkeys

import "fmt"

const (
	win32ModAlt     uint32 = 0x0001
	win32ModControl uint32 = 0x0002
	win32ModShift   uint32 = 0x0004
	win32ModWin     uint32 = 0x0008
	// win32ModNoRepeat suppresses auto-repeat so a held chord is one token.
	win32ModNoRepeat uint32 = 0x4000
)

var win32KeyByName = map[string]uint32{
	"SPACE":  0x20,
	"TAB":    0x09,
	"ENTER":  0x0D,
	"ESC":    0x1B,
	"DELETE": 0x2E,
	"LEFT":   0x25,
	"UP":     0x26,
	"RIGHT":  0x27,
	"DOWN":   0x28,
	"`":      0xC0,
}

const vkF1 uint32 = 0x70

// win32Codes translates a Binding into RegisterHotKey modifier and
// virtual-key arguments.
func win32Codes(b Binding) (uint32, uint32, error) {
	mods := win32ModNoRepeat
	if b.Modifiers()&ModCtrl != 0 {
		mods |= win32ModControl
	}
	if b.Modifiers()&ModShift != 0 {
		mods |= win32ModShift
	}
	if b.Modifiers()&ModAlt != 0 {
		mods |= win32ModAlt
	}
	if b.Modifiers()&ModSuper != 0 {
		mods |= win32ModWin
	}

	key := b.Key()
	if vk, ok := win32KeyByName[key]; ok {
		return mods, vk, nil
	}
	if len(key) == 1 {
		// Letters and digits share their ASCII value with the VK code.
		return mods, uint32(key[0]), nil
	}
	if n, ok := functionKeyNumber(key); ok {
		return mods, vkF1 + uint32(n-1), nil
	}
	return 0, 0, fmt.Errorf("no virtual-key code for %q", key)
}
