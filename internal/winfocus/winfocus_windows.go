//go:build windows

package winfocus

import (
	"fmt"
	"log/slog"
	"sync"

	"charswitch/internal/registry"
	"charswitch/internal/switcher"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procSetForegroundWindow = user32DLL.NewProc("SetForegroundWindow")
	procBringWindowToTop    = user32DLL.NewProc("BringWindowToTop")
	procIsIconic            = user32DLL.NewProc("IsIconic")
	procShowWindow          = user32DLL.NewProc("ShowWindow")
	procKeybdEvent          = user32DLL.NewProc("keybd_event")
)

const (
	swRestore       = 9
	vkMenu          = 0x12
	keyeventfKeyUp  = 0x0002
	maxTitleLength  = 512
	maxImagePathLen = windows.MAX_LONG_PATH
)

// Adapter talks to user32 for window validity, focus and enumeration.
type Adapter struct {
	processNames []string
}

// IsValid reports whether handle is a live, visible top-level window.
func (a *Adapter) IsValid(handle registry.Handle) bool {
	hwnd := windows.HWND(handle)
	return windows.IsWindow(hwnd) && windows.IsWindowVisible(hwnd)
}

// Focus restores the window if minimized and brings it to the foreground.
//
// Windows only lets the foreground process change the foreground window.
// A synthetic Alt press satisfies the "last input event" rule for background
// callers such as a hotkey thread.
func (a *Adapter) Focus(handle registry.Handle) bool {
	if err := user32DLL.Load(); err != nil {
		slog.Warn("[DEBUG-FOCUS] user32.dll is unavailable", "error", err)
		return false
	}
	hwnd := uintptr(handle)

	if iconic, _, _ := procIsIconic.Call(hwnd); iconic != 0 {
		procShowWindow.Call(hwnd, swRestore)
	}

	procKeybdEvent.Call(vkMenu, 0, 0, 0)
	defer procKeybdEvent.Call(vkMenu, 0, keyeventfKeyUp, 0)

	ok, _, err := procSetForegroundWindow.Call(hwnd)
	if ok != 0 {
		return true
	}
	slog.Debug("[DEBUG-FOCUS] SetForegroundWindow refused, trying BringWindowToTop",
		"hwnd", hwnd, "error", err)
	ok, _, err = procBringWindowToTop.Call(hwnd)
	if ok == 0 {
		slog.Debug("[DEBUG-FOCUS] BringWindowToTop failed", "hwnd", hwnd, "error", err)
		return false
	}
	return true
}

// EnumWindows callbacks are a scarce process-wide resource, so one callback is
// created and the collector for the in-flight enumeration lives in enumState.
var (
	enumMu       sync.Mutex
	enumState    []windows.HWND
	enumCallback = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		enumState = append(enumState, hwnd)
		return 1
	})
)

func topLevelWindows() ([]windows.HWND, error) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumState = nil
	if err := windows.EnumWindows(enumCallback, nil); err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	out := enumState
	enumState = nil
	return out, nil
}

// DetectWindows lists visible windows owned by a matching process, in
// z-order.
func (a *Adapter) DetectWindows() ([]switcher.WindowInfo, error) {
	hwnds, err := topLevelWindows()
	if err != nil {
		return nil, err
	}

	var out []switcher.WindowInfo
	for _, hwnd := range hwnds {
		if !windows.IsWindowVisible(hwnd) {
			continue
		}
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid == 0 {
			continue
		}
		imagePath, err := processImagePath(pid)
		if err != nil {
			// Access denied is routine for elevated or protected processes.
			continue
		}
		process, ok := matchProcess(imagePath, a.processNames)
		if !ok {
			continue
		}
		out = append(out, switcher.WindowInfo{
			Handle:  registry.Handle(hwnd),
			Title:   windowTitle(hwnd),
			PID:     pid,
			Process: process,
		})
	}
	slog.Debug("[DEBUG-FOCUS] detected windows", "count", len(out), "processNames", a.processNames)
	return out, nil
}

func windowTitle(hwnd windows.HWND) string {
	buf := make([]uint16, maxTitleLength)
	n, err := windows.GetWindowText(hwnd, &buf[0], int32(len(buf)))
	if err != nil || n <= 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func processImagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, maxImagePathLen)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}
