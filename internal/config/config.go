package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"charswitch/internal/hotkeys"
	"charswitch/internal/registry"
	"charswitch/internal/switcher"

	"go.yaml.in/yaml/v3"
)

const (
	// CurrentVersion is written to every saved config.
	CurrentVersion = "0.1.0"

	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	// DefaultStatusFeedAddr binds the status feed to loopback only.
	DefaultStatusFeedAddr = "127.0.0.1:47615"
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is the persisted application state.
type Config struct {
	Version       string                `yaml:"version" json:"version"`
	WindowManager switcher.Snapshot     `yaml:"window_manager" json:"window_manager"`
	Hotkeys       hotkeys.TableSnapshot `yaml:"hotkeys" json:"hotkeys"`
	Overlay       OverlayConfig         `yaml:"overlay" json:"overlay"`
	Detect        DetectConfig          `yaml:"detect" json:"detect"`
	StatusFeed    StatusFeedConfig      `yaml:"status_feed" json:"status_feed"`
}

// OverlayConfig is forwarded verbatim to the external overlay renderer.
type OverlayConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	PositionX int     `yaml:"position_x" json:"position_x"`
	PositionY int     `yaml:"position_y" json:"position_y"`
	Width     int     `yaml:"width" json:"width"`
	Height    int     `yaml:"height" json:"height"`
	Opacity   float64 `yaml:"opacity" json:"opacity"`
	FontSize  int     `yaml:"font_size" json:"font_size"`
}

// DetectConfig selects which windows count as game clients.
type DetectConfig struct {
	ProcessNames []string `yaml:"process_names" json:"process_names"`
}

// StatusFeedConfig controls the WebSocket status feed.
// Enabled is a pointer so an absent key can default to true.
type StatusFeedConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Addr    string `yaml:"addr" json:"addr"`
}

// IsEnabled reports whether the feed should be served.
func (c StatusFeedConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Version:       CurrentVersion,
		WindowManager: switcher.Snapshot{Bindings: []registry.CharacterBinding{}},
		Hotkeys:       hotkeys.DefaultTable(),
		Overlay: OverlayConfig{
			Enabled:   true,
			PositionX: 100,
			PositionY: 100,
			Width:     800,
			Height:    60,
			Opacity:   0.9,
			FontSize:  14,
		},
		Detect: DetectConfig{
			ProcessNames: []string{"Dofus.exe"},
		},
		StatusFeed: StatusFeedConfig{
			Addr: DefaultStatusFeedAddr,
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "charswitch", "config.yaml")
}

// Load reads the config file. A missing or empty file yields defaults.
// On a parse error the defaults are returned together with the error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of src.
func Clone(src Config) Config {
	dst := src
	dst.WindowManager.Bindings = slices.Clone(src.WindowManager.Bindings)
	dst.Hotkeys = src.Hotkeys.Clone()
	dst.Detect.ProcessNames = slices.Clone(src.Detect.ProcessNames)
	if src.StatusFeed.Enabled != nil {
		enabled := *src.StatusFeed.Enabled
		dst.StatusFeed.Enabled = &enabled
	}
	return dst
}

// Equal reports whether a and b describe the same configuration. Nil and
// empty lists compare equal, as they serialize identically.
func Equal(a, b Config) bool {
	return a.Version == b.Version &&
		slices.Equal(a.WindowManager.Bindings, b.WindowManager.Bindings) &&
		a.WindowManager.CurrentIndex == b.WindowManager.CurrentIndex &&
		a.Hotkeys.Equal(b.Hotkeys) &&
		a.Overlay == b.Overlay &&
		slices.Equal(a.Detect.ProcessNames, b.Detect.ProcessNames) &&
		a.StatusFeed.Addr == b.StatusFeed.Addr &&
		equalBoolPtr(a.StatusFeed.Enabled, b.StatusFeed.Enabled)
}

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Save validates cfg and writes it atomically. It returns the normalized
// config that was written.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	cfg = Clone(cfg)
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	cfg.Version = CurrentVersion

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}
	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = defaults.Version
	}
	if cfg.WindowManager.Bindings == nil {
		cfg.WindowManager.Bindings = []registry.CharacterBinding{}
	}
	if err := validateBindings(cfg.WindowManager.Bindings); err != nil {
		return err
	}
	if cfg.WindowManager.CurrentIndex < 0 || cfg.WindowManager.CurrentIndex >= max(len(cfg.WindowManager.Bindings), 1) {
		slog.Warn("[WARN-CONFIG] current index out of range, resetting to 0",
			"currentIndex", cfg.WindowManager.CurrentIndex, "bindings", len(cfg.WindowManager.Bindings))
		cfg.WindowManager.CurrentIndex = 0
	}

	cfg.Hotkeys = cfg.Hotkeys.WithDefaults()
	if err := validateHotkeys(cfg.Hotkeys); err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Detect.ProcessNames))
	for _, n := range cfg.Detect.ProcessNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = defaults.Detect.ProcessNames
	}
	cfg.Detect.ProcessNames = names

	validateOverlay(cfg, defaults.Overlay)
	validateStatusFeedAddr(cfg)
	return nil
}

func validateBindings(bindings []registry.CharacterBinding) error {
	seen := make(map[int]string, len(bindings))
	for _, b := range bindings {
		if b.Position < 0 || b.Position >= registry.MaxSlots {
			return fmt.Errorf("window_manager: binding %q: %w (%d)", b.Name, registry.ErrPositionOutOfRange, b.Position)
		}
		if prev, dup := seen[b.Position]; dup {
			slog.Warn("[WARN-CONFIG] duplicate binding position, last entry wins",
				"position", b.Position, "previous", prev, "name", b.Name)
		}
		seen[b.Position] = b.Name
	}
	return nil
}

// validateHotkeys rejects key specifications that cannot be parsed. Unbound
// entries ("none") are accepted.
func validateHotkeys(t hotkeys.TableSnapshot) error {
	check := func(field, spec string) error {
		if hotkeys.IsUnbound(spec) {
			return nil
		}
		if _, err := hotkeys.ParseBinding(spec); err != nil {
			return fmt.Errorf("hotkeys.%s: %w", field, err)
		}
		return nil
	}
	var errs []error
	for i, spec := range t.PositionKeys {
		errs = append(errs, check("positionKeys["+strconv.Itoa(i)+"]", spec))
	}
	errs = append(errs,
		check("nextKey", t.NextKey),
		check("previousKey", t.PreviousKey),
		check("toggleOverlayKey", t.ToggleOverlayKey),
		check("quitKey", t.QuitKey),
	)
	return errors.Join(errs...)
}

func validateOverlay(cfg *Config, defaults OverlayConfig) {
	if cfg.Overlay.Width <= 0 {
		cfg.Overlay.Width = defaults.Width
	}
	if cfg.Overlay.Height <= 0 {
		cfg.Overlay.Height = defaults.Height
	}
	if cfg.Overlay.FontSize <= 0 {
		cfg.Overlay.FontSize = defaults.FontSize
	}
	if cfg.Overlay.Opacity <= 0 || cfg.Overlay.Opacity > 1 {
		slog.Warn("[WARN-CONFIG] overlay opacity out of range (0,1], using default", "opacity", cfg.Overlay.Opacity)
		cfg.Overlay.Opacity = defaults.Opacity
	}
}

// validateStatusFeedAddr falls back to the default address when the
// configured one is not host:port with a valid port. Port 0 means
// "OS auto-assign".
func validateStatusFeedAddr(cfg *Config) {
	addr := strings.TrimSpace(cfg.StatusFeed.Addr)
	if addr == "" {
		cfg.StatusFeed.Addr = DefaultStatusFeedAddr
		return
	}
	_, port, err := net.SplitHostPort(addr)
	if err == nil {
		var n int
		n, err = strconv.Atoi(port)
		if err == nil && (n < 0 || n > 65535) {
			err = fmt.Errorf("port %d out of range", n)
		}
	}
	if err != nil {
		slog.Warn("[WARN-CONFIG] invalid status_feed.addr, using default",
			"addr", addr, "default", DefaultStatusFeedAddr, "error", err)
		cfg.StatusFeed.Addr = DefaultStatusFeedAddr
		return
	}
	cfg.StatusFeed.Addr = addr
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
