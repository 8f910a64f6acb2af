//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"charswitch/internal/userutil"
)

func socketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

func defaultEndpoint() string {
	return filepath.Join(socketDir(), "charswitch-"+userutil.InstanceSuffix()+".sock")
}

func validEndpoint(path string) bool {
	return filepath.IsAbs(path) && strings.HasSuffix(path, ".sock")
}

// listenEndpoint listens on a unix socket readable only by the current user.
// A socket file left by a dead instance is removed first.
func listenEndpoint(path string) (net.Listener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return listener, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if conn, dialErr := net.DialTimeout("unix", path, 200*time.Millisecond); dialErr == nil {
		conn.Close()
		return fmt.Errorf("%s is in use by a running instance", path)
	}
	slog.Debug("[ipc] removing stale socket", "path", path)
	return os.Remove(path)
}

func dialEndpoint(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
