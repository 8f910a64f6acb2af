package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor or atomicWrite
// produces for a single save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch calls onChange with the freshly loaded config after path changes on
// disk, until ctx is cancelled. The parent directory is watched so that
// rename-based saves (including Save itself) are observed. Files that fail to
// load are logged and skipped.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(Config)) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config: add %s: %w", filepath.Dir(absPath), err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config", "path", absPath)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != absPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", werr)
		case <-timer.C:
			cfg, err := Load(absPath)
			if err != nil {
				slog.Warn("[WARN-CONFIG] reload skipped, config invalid", "path", absPath, "error", err)
				continue
			}
			onChange(cfg)
		}
	}
}
