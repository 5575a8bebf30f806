package keys

// CommandToggleDevTools toggles the debug overlay of the focused window.
const CommandToggleDevTools = "toggle-devtools"
