package hotkeys

// Modifier is a platform-neutral modifier bitmask.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

// Binding describes a parsed global shortcut.
// Construct only via ParseBinding to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        string
	normalized string
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Key returns the upper-case key name ("H", "F12", "SPACE").
func (b Binding) Key() string { return b.key }

// Normalized returns the canonical accelerator string. Two specs that
// resolve to the same physical shortcut normalize identically.
func (b Binding) Normalized() string { return b.normalized }
