package hotkey

import "golang.design/x/hotkey"

// ConflictInfo describes a system or launcher shortcut the live toggle
// would shadow
type ConflictInfo struct {
	Name        string
	Description string
	Modifiers   []hotkey.Modifier
	Key         hotkey.Key
}

func conflict(name, desc string, key hotkey.Key, mods ...hotkey.Modifier) ConflictInfo {
	return ConflictInfo{Name: name, Description: desc, Modifiers: mods, Key: key}
}

// knownConflicts lists macOS and common launcher shortcuts
var knownConflicts = []ConflictInfo{
	conflict("Spotlight", "macOS Spotlight search", hotkey.KeySpace, hotkey.ModCmd),
	conflict("Alfred", "Alfred launcher (common default)", hotkey.KeySpace, hotkey.ModCmd),
	conflict("Raycast", "Raycast launcher (common default)", hotkey.KeySpace, hotkey.ModCmd),
	conflict("IME Switch", "Input source switch", hotkey.KeySpace, hotkey.ModCtrl),
	conflict("Lock Screen", "macOS Lock Screen", hotkey.KeyQ, hotkey.ModCtrl, hotkey.ModCmd),
	conflict("Quit", "Quit the frontmost application", hotkey.KeyQ, hotkey.ModCmd),
	conflict("Hide", "Hide the frontmost application", hotkey.KeyH, hotkey.ModCmd),
	conflict("Force Quit", "macOS Force Quit", hotkey.KeyEscape, hotkey.ModCmd, hotkey.ModOption),
}

// CheckConflicts returns the known shortcuts identical to modifiers+key
func CheckConflicts(modifiers []hotkey.Modifier, key hotkey.Key) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if hotkeyMatches(modifiers, key, known.Modifiers, known.Key) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// modifierSet folds modifiers into one bitmask so order does not matter
func modifierSet(mods []hotkey.Modifier) uint64 {
	var set uint64
	for _, mod := range mods {
		set |= uint64(mod)
	}
	return set
}

// hotkeyMatches reports whether two combinations press the same keys
func hotkeyMatches(mods1 []hotkey.Modifier, key1 hotkey.Key, mods2 []hotkey.Modifier, key2 hotkey.Key) bool {
	return key1 == key2 && modifierSet(mods1) == modifierSet(mods2)
}

// FormatHotkey returns a human-readable string representation of the hotkey
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	result := ""

	for _, mod := range modifiers {
		switch mod {
		case hotkey.ModCtrl:
			result += "⌃"
		case hotkey.ModShift:
			result += "⇧"
		case hotkey.ModOption:
			result += "⌥"
		case hotkey.ModCmd:
			result += "⌘"
		}
	}

	result += keyToString(key)
	return result
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	for name, k := range keyMap {
		if k == key {
			return name
		}
	}
	return "Unknown"
}
