package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"charswitch/internal/config"
	"charswitch/internal/hotkeys"
	"charswitch/internal/ipc"
	"charswitch/internal/sessionlog"
	"charswitch/internal/statusfeed"
	"charswitch/internal/switcher"
)

const defaultRefreshInterval = time.Second

// windowSystem is the platform window layer: focus plus detection.
type windowSystem interface {
	switcher.FocusAdapter
	switcher.WindowDetector
}

// hookFacility is a hotkeys.Hook that owns OS resources.
type hookFacility interface {
	hotkeys.Hook
	Close() error
}

type appOptions struct {
	configPath string
	// controlEndpoint overrides ipc.DefaultEndpoint when set.
	controlEndpoint string
	disableControl  bool
	refreshInterval time.Duration

	// newWindows builds the window layer from the configured process names.
	newWindows func(processNames []string) windowSystem
	newHook    func() hookFacility
	warnings   *sessionlog.Ring
}

// App wires the switcher core to its collaborators.
//
// Lock ordering: cfgMu, resultMu and ctxMu are independent leaves. None of
// them is held while calling into the controller, coordinator, status feed
// or control server.
type App struct {
	opts appOptions

	ctxMu  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	// cfgSaveMu serializes read-modify-write of the config file.
	// Lock ordering: cfgSaveMu -> cfgMu.
	cfgSaveMu sync.Mutex
	cfgMu     sync.RWMutex
	cfg       config.Config
	// configReadOnly is set while the on-disk file is unreadable.
	configReadOnly atomic.Bool

	// Set once in startup before any worker starts; read-only afterwards.
	windows     windowSystem
	controller  *switcher.Controller
	hook        hookFacility
	coordinator *hotkeys.Coordinator
	feed        *statusfeed.Hub
	control     *ipc.Server

	overlayVisible atomic.Bool
	resultMu       sync.Mutex
	lastResult     *statusfeed.Result

	shuttingDown atomic.Bool
	quitOnce     sync.Once
	quitCh       chan struct{}

	bgWG sync.WaitGroup
}

// NewApp creates an app that has not been started.
func NewApp(opts appOptions) *App {
	if opts.refreshInterval <= 0 {
		opts.refreshInterval = defaultRefreshInterval
	}
	if opts.configPath == "" {
		opts.configPath = config.DefaultPath()
	}
	if opts.newWindows == nil {
		opts.newWindows = defaultWindows
	}
	if opts.newHook == nil {
		opts.newHook = defaultHook
	}
	if opts.warnings == nil {
		opts.warnings = sessionlog.NewRing(sessionlog.DefaultCapacity)
	}
	return &App{
		opts:   opts,
		quitCh: make(chan struct{}),
	}
}

// requestQuit ends Run. Safe to call many times from any goroutine.
func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quitCh) })
}

func (a *App) runtimeContext() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) configSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

func (a *App) setConfigSnapshot(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = config.Clone(cfg)
	a.cfgMu.Unlock()
}
