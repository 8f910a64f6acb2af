package main

import (
	"charswitch/internal/hotkeys"
	"charswitch/internal/winfocus"
)

func defaultWindows(processNames []string) windowSystem {
	return winfocus.New(processNames)
}

func defaultHook() hookFacility {
	return hotkeys.NewManager()
}
