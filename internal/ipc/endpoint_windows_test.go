//go:build windows

package ipc

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func testEndpoint(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf(`\\.\pipe\charswitch-test-%d`, time.Now().UnixNano())
}

func TestDefaultEndpointHonorsTrustedEnvOverride(t *testing.T) {
	t.Setenv(endpointEnv, `\\.\pipe\charswitch-ci_pipe`)
	if got := DefaultEndpoint(); got != `\\.\pipe\charswitch-ci_pipe` {
		t.Fatalf("DefaultEndpoint() = %q, want trusted env override", got)
	}
}

func TestDefaultEndpointRejectsForeignPipe(t *testing.T) {
	t.Setenv(endpointEnv, `\\.\pipe\other-app`)
	if got := DefaultEndpoint(); !strings.HasPrefix(got, defaultPipePrefix) {
		t.Fatalf("DefaultEndpoint() = %q, want %q prefix", got, defaultPipePrefix)
	}
}

func TestDefaultEndpointSanitizesUsername(t *testing.T) {
	t.Setenv(endpointEnv, "")
	t.Setenv("USERNAME", "unit user!")
	if got, want := DefaultEndpoint(), `\\.\pipe\charswitch-unit_user_`; got != want {
		t.Fatalf("DefaultEndpoint() = %q, want %q", got, want)
	}
}
