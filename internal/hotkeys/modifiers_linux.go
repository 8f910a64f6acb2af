//go:build linux && x11

package hotkeys

import "golang.design/x/hotkey"

var modifierMap = map[Modifier]hotkey.Modifier{
	modControl: hotkey.ModCtrl,
	modShift:   hotkey.ModShift,
	modAlt:     hotkey.Mod1, // Alt = Mod1 on X11
	modWin:     hotkey.Mod4, // Super = Mod4 on X11
}

// X11 keysyms the library does not name.
var platformKeys = map[VKey]hotkey.Key{
	vkOem3:     hotkey.Key(0x0060), // grave
	vkOem5:     hotkey.Key(0x005c), // backslash
	vkHome:     hotkey.Key(0xff50),
	vkEnd:      hotkey.Key(0xff57),
	vkPageUp:   hotkey.Key(0xff55),
	vkPageDown: hotkey.Key(0xff56),
	vkInsert:   hotkey.Key(0xff63),
}
