//go:build darwin

package hotkeys

import "golang.design/x/hotkey"

var modifierMap = map[Modifier]hotkey.Modifier{
	modControl: hotkey.ModCtrl,
	modShift:   hotkey.ModShift,
	modAlt:     hotkey.ModOption,
	modWin:     hotkey.ModCmd,
}

// Carbon virtual key codes the library does not name.
var platformKeys = map[VKey]hotkey.Key{
	vkOem3:     hotkey.Key(0x32), // kVK_ANSI_Grave
	vkOem5:     hotkey.Key(0x2A), // kVK_ANSI_Backslash
	vkHome:     hotkey.Key(0x73),
	vkEnd:      hotkey.Key(0x77),
	vkPageUp:   hotkey.Key(0x74),
	vkPageDown: hotkey.Key(0x79),
	vkInsert:   hotkey.Key(0x72), // kVK_Help
}
