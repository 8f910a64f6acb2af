package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"charswitch/internal/config"
	"charswitch/internal/hotkeys"
	"charswitch/internal/ipc"
	"charswitch/internal/statusfeed"
	"charswitch/internal/switcher"
)

const shutdownWaitTimeout = 5 * time.Second

// Run starts the app and blocks until ctx is cancelled or a quit is
// requested, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		a.shutdown()
		return err
	}
	select {
	case <-ctx.Done():
		slog.Info("[DEBUG-APP] context cancelled, shutting down")
	case <-a.quitCh:
		slog.Info("[DEBUG-APP] quit requested, shutting down")
	}
	a.shutdown()
	return nil
}

// startup loads config, builds the core and starts every service.
// Only control channel failures are fatal: without it a second launch could
// not reach this instance.
func (a *App) startup(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.ctxMu.Lock()
	a.ctx = ctx
	a.cancel = cancel
	a.ctxMu.Unlock()

	for _, message := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[WARN-CONFIG] " + message)
	}

	cfg, err := config.EnsureFile(a.opts.configPath)
	firstRun := false
	if err != nil {
		// Non-fatal: run with defaults and surface the warning.
		// The broken file is left untouched until a reload succeeds.
		slog.Warn("[WARN-CONFIG] failed to load config, running with defaults",
			"path", a.opts.configPath, "error", err)
		cfg = config.DefaultConfig()
		a.configReadOnly.Store(true)
	} else if len(cfg.WindowManager.Bindings) == 0 {
		firstRun = true
	}

	a.windows = a.opts.newWindows(cfg.Detect.ProcessNames)
	a.controller = switcher.New(a.windows)
	a.hook = a.opts.newHook()
	a.coordinator = hotkeys.NewCoordinator(a.hook, a.controller, hotkeys.Options{
		OnToggleOverlay: a.toggleOverlay,
		OnQuit:          a.requestQuit,
		OnResult: func(action hotkeys.Action, err error) {
			a.recordResult(action.String(), err)
		},
	})

	// The cursor is restored only here; later reloads keep the live one.
	if err := a.controller.LoadSnapshot(cfg.WindowManager); err != nil {
		slog.Warn("[WARN-CONFIG] invalid window_manager section ignored", "error", err)
	}
	a.applyConfig(cfg)
	if firstRun {
		a.seedFromDetection()
	}

	if err := a.coordinator.RegisterAll(); err != nil {
		slog.Warn("[DEBUG-hotkey] some hotkeys could not be registered", "error", err)
	}

	if cfg.StatusFeed.IsEnabled() {
		a.startStatusFeed(ctx, cfg.StatusFeed.Addr)
	}

	if !a.opts.disableControl {
		control := ipc.NewServer(a.opts.controlEndpoint, a)
		if err := control.Start(); err != nil {
			return fmt.Errorf("start control channel: %w", err)
		}
		a.control = control
	}

	a.startWorkers(ctx)
	a.publishStatus()
	slog.Info("[DEBUG-APP] started",
		"characters", a.controller.Count(),
		"hotkeysRegistered", a.coordinator.Registered(),
		"config", a.opts.configPath)
	return nil
}

func (a *App) startStatusFeed(ctx context.Context, addr string) {
	hub := statusfeed.NewHub(statusfeed.HubOptions{Addr: addr})
	if err := hub.Start(ctx); err != nil {
		// Non-fatal: switching works without a renderer.
		slog.Warn("[DEBUG-WS] status feed unavailable", "addr", addr, "error", err)
		return
	}
	a.feed = hub
}

// applyConfig brings the running state in line with cfg. The registry is
// replaced only when its bindings changed, so a stale on-disk cursor does not
// move the live one. Hotkeys are re-registered only when the table changed.
func (a *App) applyConfig(cfg config.Config) {
	if !slices.Equal(cfg.WindowManager.Bindings, a.controller.List()) {
		if err := a.controller.LoadSnapshot(cfg.WindowManager); err != nil {
			slog.Warn("[WARN-CONFIG] invalid window_manager section ignored", "error", err)
		}
	}
	if !cfg.Hotkeys.WithDefaults().Equal(a.coordinator.Snapshot()) {
		if err := a.coordinator.LoadSnapshot(cfg.Hotkeys); err != nil {
			slog.Warn("[DEBUG-hotkey] some hotkeys could not be re-registered", "error", err)
		}
	}
	a.overlayVisible.Store(cfg.Overlay.Enabled)
	a.setConfigSnapshot(cfg)
}

// seedFromDetection fills an empty registry from detected windows and
// persists the result.
func (a *App) seedFromDetection() {
	n, err := a.controller.Seed(a.windows, nil)
	if err != nil {
		slog.Warn("[DEBUG-SWITCH] window detection failed", "error", err)
		return
	}
	if n == 0 {
		slog.Warn("[DEBUG-SWITCH] no game windows detected; start the game clients and run rescan")
		return
	}
	slog.Info("[DEBUG-SWITCH] characters seeded from detected windows", "count", n)
	a.persistState()
}

// reloadConfig re-reads the config file and applies it when it differs from
// the running state.
func (a *App) reloadConfig() error {
	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	a.onConfigChanged(cfg)
	return nil
}

func (a *App) onConfigChanged(cfg config.Config) {
	if a.shuttingDown.Load() {
		return
	}
	if config.Equal(cfg, a.configSnapshot()) {
		slog.Debug("[DEBUG-CONFIG] config unchanged, skipping reload")
		return
	}
	slog.Info("[DEBUG-CONFIG] config changed on disk, applying")
	a.configReadOnly.Store(false)
	a.applyConfig(cfg)
	a.publishStatus()
}

// persistState writes the live registry, cursor, key table and overlay
// visibility back to the config file.
func (a *App) persistState() {
	if a.configReadOnly.Load() {
		slog.Debug("[DEBUG-CONFIG] config file failed to load, not overwriting it")
		return
	}
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	cfg := a.configSnapshot()
	cfg.WindowManager = a.controller.Snapshot()
	cfg.Hotkeys = a.coordinator.Snapshot()
	cfg.Overlay.Enabled = a.overlayVisible.Load()

	saved, err := config.Save(a.opts.configPath, cfg)
	if err != nil {
		slog.Warn("[WARN-CONFIG] failed to save config", "path", a.opts.configPath, "error", err)
		return
	}
	a.setConfigSnapshot(saved)
}

// shutdown persists state and releases every resource. It is idempotent.
func (a *App) shutdown() {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	a.ctxMu.Lock()
	cancel := a.cancel
	a.ctxMu.Unlock()
	if cancel != nil {
		cancel()
	}

	if a.control != nil {
		if err := a.control.Stop(); err != nil {
			slog.Warn("[ipc] control channel stop failed", "error", err)
		}
	}

	if a.coordinator != nil {
		a.persistState()
		if err := a.coordinator.UnregisterAll(); err != nil {
			slog.Warn("[DEBUG-hotkey] unregister failed during shutdown", "error", err)
		}
	}
	if a.hook != nil {
		if err := a.hook.Close(); err != nil {
			slog.Warn("[DEBUG-hotkey] hook close failed", "error", err)
		}
	}

	if a.feed != nil {
		if err := a.feed.Stop(); err != nil {
			slog.Warn("[DEBUG-WS] status feed stop failed", "error", err)
		}
	}

	if !waitWithTimeout(&a.bgWG, shutdownWaitTimeout) {
		slog.Warn("[DEBUG-APP] background workers did not stop in time", "timeout", shutdownWaitTimeout)
	}
	slog.Info("[DEBUG-APP] shutdown complete")
}

type waiter interface{ Wait() }

func waitWithTimeout(wg waiter, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// errAppNotStarted is returned by control commands that arrive before startup.
var errAppNotStarted = errors.New("switcher is not running")
