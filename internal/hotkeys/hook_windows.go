//go:build windows

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey     = user32DLL.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32DLL.NewProc("UnregisterHotKey")
	procGetMessageW        = user32DLL.NewProc("GetMessageW")
	procTranslateMessage   = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW   = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW       = user32DLL.NewProc("PeekMessageW")
)

const (
	wmHotkey    = 0x0312
	wmQuit      = 0x0012
	pmNoRemove  = 0x0000
	modNoRepeat = 0x4000

	// maxHotkeyID is the upper bound for application-defined hotkey IDs (Win32).
	maxHotkeyID int32 = 0xBFFF

	loopStopTimeout = 2 * time.Second
)

var nextHotkeyID int32 = 0x4000

// activeHotkey is one live RegisterHotKey registration and its message loop.
type activeHotkey struct {
	hotkeyID int32
	threadID uint32
	doneCh   chan struct{}
	binding  string
}

type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
// Field order and types must match the Win32 binary layout.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

type loopReady struct {
	threadID uint32
	err      error
}

// Manager binds global hotkeys through RegisterHotKey. Each binding owns a
// locked OS thread running its message loop, since WM_HOTKEY is delivered to
// the registering thread.
type Manager struct {
	mu     sync.Mutex
	active map[string]*activeHotkey // keyed by normalized binding
}

// NewManager creates an empty hotkey manager.
func NewManager() *Manager {
	return &Manager{active: map[string]*activeHotkey{}}
}

// Bind registers spec and calls onTrigger on each press.
func (m *Manager) Bind(spec string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	// LazyProc.Call panics on a missing DLL; check up front.
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}

	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[binding.Normalized()]; exists {
		return fmt.Errorf("hotkey %q is already bound", binding.Normalized())
	}

	hotkeyID := atomic.AddInt32(&nextHotkeyID, 1)
	if hotkeyID < 0 || hotkeyID > maxHotkeyID {
		return fmt.Errorf("hotkey ID range exhausted (ID=%d)", hotkeyID)
	}

	readyCh := make(chan loopReady, 1)
	doneCh := make(chan struct{})
	go runHotkeyLoop(hotkeyID, binding, onTrigger, readyCh, doneCh)

	ready := <-readyCh
	if ready.err != nil {
		return fmt.Errorf("register hotkey %q failed: %w", binding.Normalized(), ready.err)
	}

	m.active[binding.Normalized()] = &activeHotkey{
		hotkeyID: hotkeyID,
		threadID: ready.threadID,
		doneCh:   doneCh,
		binding:  binding.Normalized(),
	}
	slog.Debug("[DEBUG-hotkey] registered", "binding", binding.Normalized(), "hotkeyID", hotkeyID)
	return nil
}

// Unbind removes the registration for spec. Unknown specs are a no-op.
func (m *Manager) Unbind(spec string) error {
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ah, ok := m.active[binding.Normalized()]
	if !ok {
		return nil
	}
	delete(m.active, binding.Normalized())
	return stopLoop(ah)
}

// Close removes every registration.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, ah := range m.active {
		delete(m.active, key)
		errs = append(errs, stopLoop(ah))
	}
	return errors.Join(errs...)
}

// ActiveBindings returns the normalized bindings currently registered.
func (m *Manager) ActiveBindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for key := range m.active {
		out = append(out, key)
	}
	return out
}

func stopLoop(ah *activeHotkey) error {
	stopErr := postQuit(ah.threadID)
	if stopErr != nil {
		if unregErr := unregisterHotKey(ah.hotkeyID); unregErr != nil {
			slog.Warn("[DEBUG-hotkey] unregisterHotKey fallback failed (cross-thread; may be expected)",
				"error", unregErr, "hotkeyID", ah.hotkeyID)
		}
	}

	timer := time.NewTimer(loopStopTimeout)
	defer timer.Stop()

	select {
	case <-ah.doneCh:
	case <-timer.C:
		slog.Warn("[DEBUG-hotkey] message loop stop timed out, thread may leak",
			"hotkeyID", ah.hotkeyID, "binding", ah.binding)
		stopErr = errors.Join(stopErr, fmt.Errorf("hotkey message loop stop timed out (hotkeyID=%d)", ah.hotkeyID))
	}
	return stopErr
}

func runHotkeyLoop(hotkeyID int32, binding Binding, onTrigger func(), readyCh chan<- loopReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID := windows.GetCurrentThreadId()
	if threadID == 0 {
		readyCh <- loopReady{err: errors.New("GetCurrentThreadId returned 0")}
		return
	}

	// PeekMessageW creates the thread message queue so PostThreadMessageW can
	// deliver WM_QUIT later. A zero return just means no message is pending.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Debug("[DEBUG-hotkey] PeekMessageW for queue init returned error",
			"error", peekErr, "hotkeyID", hotkeyID)
	}

	mods := uint32(binding.Modifiers()) | modNoRepeat
	if err := registerHotKey(hotkeyID, mods, uint32(binding.Key())); err != nil {
		readyCh <- loopReady{err: err}
		return
	}
	defer func() {
		if err := unregisterHotKey(hotkeyID); err != nil {
			slog.Error("[DEBUG-hotkey] unregisterHotKey on loop exit failed (resource leak)",
				"error", err, "hotkeyID", hotkeyID)
		}
	}()

	readyCh <- loopReady{threadID: threadID}

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[DEBUG-hotkey] GetMessageW returned error, exiting loop", "error", lastErr, "hotkeyID", hotkeyID)
			return
		case 0:
			return // WM_QUIT
		}

		if msg.message == wmHotkey && int32(msg.wParam) == hotkeyID {
			onTrigger()
			continue
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func registerHotKey(hotkeyID int32, modifiers uint32, key uint32) error {
	res, _, err := procRegisterHotKey.Call(0, uintptr(hotkeyID), uintptr(modifiers), uintptr(key))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("RegisterHotKey failed")
	}
	return err
}

func unregisterHotKey(hotkeyID int32) error {
	res, _, err := procUnregisterHotKey.Call(0, uintptr(hotkeyID))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("UnregisterHotKey failed")
	}
	return err
}

func postQuit(threadID uint32) error {
	if threadID == 0 {
		return errors.New("cannot post WM_QUIT: threadID is 0")
	}
	res, _, err := procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return err
}
