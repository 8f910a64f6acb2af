// Package singleinstance keeps a second switcher from running for the same
// user. Windows uses a named mutex, Linux and macOS an flock'ed lock file.
package singleinstance

import (
	"errors"
	"log/slog"
	"sync"

	"charswitch/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock is a held instance lock. The OS drops it when the owning process
// exits, so a crash never leaves a stale lock behind.
type Lock struct {
	name string

	mu      sync.Mutex
	release func() error
}

// Acquire takes the per-user lock named by DefaultName.
func Acquire() (*Lock, error) {
	return TryLock(DefaultName())
}

// TryLock takes the lock called name without blocking.
// Returns ErrAlreadyRunning if another process already holds it.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	release, err := acquire(name)
	if err != nil {
		return nil, err
	}
	slog.Debug("[DEBUG-SINGLE] instance lock acquired", "name", name)
	return &Lock{name: name, release: release}, nil
}

// Name returns the platform name of the lock.
func (l *Lock) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Release drops the lock. Safe to call on nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

// DefaultName returns the per-user lock name. It shares its suffix with the
// control channel endpoint.
func DefaultName() string {
	return defaultName(userutil.InstanceSuffix())
}
