//go:build darwin

package main

import "golang.design/x/hotkey/mainthread"

// runOnMainThread starts the macOS main-thread event loop that hotkey
// registration requires, and runs fn on another goroutine.
func runOnMainThread(fn func()) {
	mainthread.Init(fn)
}
