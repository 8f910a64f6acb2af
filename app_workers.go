package main

import (
	"context"
	"log/slog"

	"charswitch/internal/config"
	"charswitch/internal/workerutil"
)

func (a *App) recoveryOptions() workerutil.RecoveryOptions {
	return workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
		OnFatal: func(worker string, maxRetries int) {
			slog.Error("[DEBUG-PANIC] background worker stopped permanently",
				"worker", worker, "maxRetries", maxRetries)
		},
	}
}

// startWorkers launches the hotkey dispatch loop, the periodic status
// refresh and the config watcher.
func (a *App) startWorkers(ctx context.Context) {
	opts := a.recoveryOptions()

	workerutil.RunWithPanicRecovery(ctx, "hotkey-dispatch", &a.bgWG, a.coordinator.Run, opts)
	workerutil.RunWithPanicRecovery(ctx, "status-refresh", &a.bgWG,
		workerutil.Ticker(a.opts.refreshInterval, a.refreshStatus), opts)
	workerutil.RunWithPanicRecovery(ctx, "config-watch", &a.bgWG, func(ctx context.Context) {
		if err := config.Watch(ctx, a.opts.configPath, 0, a.onConfigChanged); err != nil {
			slog.Warn("[DEBUG-CONFIG] config watcher unavailable, edits need a reload", "error", err)
		}
	}, opts)
}

// refreshStatus re-publishes status and logs windows that went away.
func (a *App) refreshStatus() {
	if stale := a.controller.ValidateAll(); len(stale) > 0 {
		slog.Debug("[DEBUG-SWITCH] stale windows in registry", "positions", stale)
	}
	a.publishStatus()
}
