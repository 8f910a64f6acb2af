package main

import (
	"log/slog"
	"time"

	"charswitch/internal/statusfeed"
)

var nowFn = time.Now

// statusSnapshot assembles the published view of the running app.
func (a *App) statusSnapshot() statusfeed.Snapshot {
	snap := statusfeed.Snapshot{
		Status:            a.controller.Status(),
		HotkeysRegistered: a.coordinator.Registered(),
		OverlayVisible:    a.overlayVisible.Load(),
		Overlay:           a.configSnapshot().Overlay,
		Warnings:          a.opts.warnings.Lines(),
	}
	snap.Overlay.Enabled = snap.OverlayVisible

	a.resultMu.Lock()
	if a.lastResult != nil {
		r := *a.lastResult
		snap.LastResult = &r
	}
	a.resultMu.Unlock()
	return snap
}

func (a *App) publishStatus() {
	if a.feed == nil {
		return
	}
	a.feed.Publish(a.statusSnapshot())
}

// recordResult remembers the outcome of an action and publishes it.
func (a *App) recordResult(action string, err error) {
	r := &statusfeed.Result{Action: action, At: nowFn()}
	if err != nil {
		r.Error = err.Error()
	}
	a.resultMu.Lock()
	a.lastResult = r
	a.resultMu.Unlock()
	a.publishStatus()
}

// toggleOverlay flips overlay visibility and persists it.
func (a *App) toggleOverlay() {
	for {
		old := a.overlayVisible.Load()
		if a.overlayVisible.CompareAndSwap(old, !old) {
			slog.Info("[DEBUG-APP] overlay toggled", "visible", !old)
			break
		}
	}
	a.persistState()
	a.publishStatus()
}
