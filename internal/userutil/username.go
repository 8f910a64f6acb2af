package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// lookupCurrentUser is a test seam.
var lookupCurrentUser = user.Current

// SanitizeUsername normalizes username-like values used in pipe, socket and
// mutex names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// CurrentUsername returns USERNAME, then USER, then the OS account name.
// It returns "" when none is available.
func CurrentUsername() string {
	for _, key := range []string{"USERNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if current, err := lookupCurrentUser(); err == nil {
		return current.Username
	}
	return ""
}

// InstanceSuffix is the sanitized current username that scopes per-user
// endpoint and mutex names.
func InstanceSuffix() string {
	return SanitizeUsername(CurrentUsername())
}
