// Package app assembles the delivery engine: backend client, preference
// store, permission controller, admission gate, channel dispatcher and
// the poll loop, wired together behind a small facade the command (and
// any embedding UI) drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"chime/internal/backend"
	"chime/internal/channel/badge"
	"chime/internal/channel/native"
	"chime/internal/channel/sound"
	"chime/internal/channel/toast"
	"chime/internal/config"
	"chime/internal/eventbus"
	"chime/internal/notify"
	"chime/internal/permission"
	"chime/internal/poll"
	"chime/internal/prefs"
	"chime/internal/storage"
	"chime/pkg/logx"
)

type Engine struct {
	log logx.Logger
	bus eventbus.Bus

	client *backend.Client
	store  storage.Store
	prefs  *prefs.Store
	perm   *permission.Controller
	gate   *notify.Gate
	disp   *notify.Dispatcher

	sound  *sound.Channel
	native *native.Channel
	toasts *toast.Feed
	badge  *badge.Publisher
	loop   *poll.Loop

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds the engine from a parsed config. Nothing starts running
// until Start.
func New(cfg *config.Config, bus eventbus.Bus, log logx.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if bus == nil {
		bus = eventbus.New()
	}

	e := &Engine{log: log.With(logx.String("svc", "engine")), bus: bus}

	timeout, err := config.ParseDurationOrDefault("backend.timeout", cfg.Backend.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	e.client, err = backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   timeout,
		AuthToken: cfg.Backend.AuthToken,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			return nil, err
		}
		e.store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	var cache prefs.Cache
	if e.store != nil {
		cache = e.store
	}
	e.prefs = prefs.New(e.client, cache, log)

	act := &activator{log: e.log}
	e.native = native.New(native.Config{
		AppName: cfg.Channels.Native.AppName,
		Icon:    cfg.Channels.Native.Icon,
	}, act, log)
	e.perm = permission.New(e.native, e.prefs, e.native, bus, log)

	e.sound = sound.New(sound.Config{
		Player:    cfg.Channels.Sound.Player,
		MuteProbe: cfg.Channels.Sound.MuteProbe,
	}, log)
	fadeGrace, err := config.ParseDurationOrDefault("channels.toast.fade_grace", cfg.Channels.Toast.FadeGrace, 300*time.Millisecond)
	if err != nil {
		return nil, err
	}

	gateCfg, err := gateConfig(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	var journal notify.Journal
	if cfg.Delivery.PersistActive && e.store != nil {
		journal = e.store
	}
	e.gate = notify.NewGate(gateCfg, bus, journal, log)

	e.toasts = toast.New(toast.Config{
		Lifetime:   gateCfg.DisplayLifetime,
		FadeGrace:  fadeGrace,
		MaxVisible: cfg.Channels.Toast.MaxVisible,
	}, bus, act, log)
	e.badge = badge.New(badge.Config{Path: cfg.Channels.Badge.Path}, bus, log)

	var audit notify.DeliveryAudit
	if e.store != nil {
		audit = e.store
	}
	e.disp = notify.NewDispatcher(notify.DispatcherDeps{
		Sound:      e.sound,
		Native:     e.native,
		Toast:      e.toasts,
		Badge:      e.badge,
		Settings:   e.prefs.Current,
		Permission: e.perm.Current,
		ActiveSize: e.gate.Size,
		Audit:      audit,
		Bus:        bus,
	}, cfg.Delivery.HistorySize, log)

	e.loop, err = poll.NewLoop(poll.Config{
		Enabled:  cfg.Poll.Enabled,
		Schedule: cfg.Poll.Schedule,
		Limit:    cfg.Poll.Limit,
	}, e.client, e.gate, e.disp, log)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return e, nil
}

func gateConfig(d config.DeliveryConfig) (notify.GateConfig, error) {
	window, err := config.ParseDurationOrDefault("delivery.debounce_window", d.DebounceWindow, time.Second)
	if err != nil {
		return notify.GateConfig{}, err
	}
	lifetime, err := config.ParseDurationOrDefault("delivery.display_lifetime", d.DisplayLifetime, 8*time.Second)
	if err != nil {
		return notify.GateConfig{}, err
	}
	jitter, err := config.ParseDurationOrDefault("delivery.eviction_jitter", d.EvictionJitter, 300*time.Millisecond)
	if err != nil {
		return notify.GateConfig{}, err
	}
	return notify.GateConfig{
		DebounceWindow:  window,
		DisplayLifetime: lifetime,
		EvictionJitter:  jitter,
	}, nil
}

// Start hydrates state, requests notification permission once, and
// launches the poll loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	close(e.doneCh) // replaced by watchCfg when a manager is attached
	e.mu.Unlock()

	e.gate.Hydrate(ctx)
	e.prefs.Load(ctx)
	e.perm.RequestIfNeeded(ctx)
	e.loop.Start(ctx)
	e.log.Info("engine started",
		logx.String("permission", string(e.perm.Current())),
		logx.Bool("sound", e.prefs.Current().SoundEnabled))
	return nil
}

// WatchConfig subscribes to manager updates and applies the reloadable
// knobs (gate timings, poll schedule) in place. Call after Start.
func (e *Engine) WatchConfig(m *config.Manager) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	stop := e.stopCh
	done := make(chan struct{})
	e.doneCh = done
	e.mu.Unlock()

	ch := m.Subscribe(1)
	go func() {
		defer close(done)
		defer m.Unsubscribe(ch)
		for {
			select {
			case <-stop:
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				e.apply(cfg)
			}
		}
	}()
}

func (e *Engine) apply(cfg *config.Config) {
	gateCfg, err := gateConfig(cfg.Delivery)
	if err != nil {
		e.log.Warn("reload: bad delivery config", logx.Err(err))
	} else {
		e.gate.Apply(gateCfg)
	}
	if err := e.loop.Apply(poll.Config{
		Enabled:  cfg.Poll.Enabled,
		Schedule: cfg.Poll.Schedule,
		Limit:    cfg.Poll.Limit,
	}); err != nil {
		e.log.Warn("reload: bad poll config", logx.Err(err))
	}
	e.log.Info("config reapplied")
}

// Stop shuts the engine down: the config watcher and poll loop first,
// then the native connection and storage. ctx bounds the waits on the
// background goroutines.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	stop, done := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	loopDone := make(chan struct{})
	go func() {
		e.loop.Stop()
		close(loopDone)
	}()
	select {
	case <-loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	if err := e.native.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.log.Info("engine stopped")
	return errors.Join(errs...)
}

// Settings returns the current resolved preferences.
func (e *Engine) Settings() notify.Settings { return e.prefs.Current() }

// Permission returns the session permission state.
func (e *Engine) Permission() notify.PermissionState { return e.perm.Current() }

// ToggleSound flips the sound preference, persisting it locally and to
// the backend. Returns whether the backend write succeeded.
func (e *Engine) ToggleSound(ctx context.Context, enabled bool) bool {
	return e.prefs.Save(ctx, prefs.KeySound, enabled)
}

// ToggleNotifications flips the native-channel preference.
func (e *Engine) ToggleNotifications(ctx context.Context, enabled bool) bool {
	return e.prefs.Save(ctx, prefs.KeyNotifications, enabled)
}

// RequestPermission runs the permission prompt if it has not been asked
// this session, returning the resulting state.
func (e *Engine) RequestPermission(ctx context.Context) notify.PermissionState {
	return e.perm.RequestIfNeeded(ctx)
}

// SendTest dispatches a synthetic record straight to the channels,
// bypassing the gate so it always fires.
func (e *Engine) SendTest(ctx context.Context) notify.Record {
	rec := notify.Record{
		ID:        "test-" + uuid.NewString(),
		Title:     "Test notification",
		Message:   "If you can see this, delivery works.",
		Category:  notify.CategoryMessage,
		CreatedAt: time.Now(),
	}
	e.disp.FanOut(ctx, rec)
	return rec
}

// Push routes an out-of-band record through the ordinary admit and
// fan-out path.
func (e *Engine) Push(ctx context.Context, rec notify.Record) bool {
	return e.loop.Push(ctx, rec)
}

// ClearAll dismisses every visible toast, empties the active set and
// resets the badge. Returns the number of evicted records.
func (e *Engine) ClearAll() int {
	n := e.gate.ClearAll()
	e.toasts.DismissAll()
	e.badge.Clear()
	return n
}

// Active returns the records currently inside their display lifetime.
func (e *Engine) Active() []notify.Record { return e.gate.Snapshot() }

// Toasts returns the visible toast feed, oldest first.
func (e *Engine) Toasts() []toast.Toast { return e.toasts.Visible() }

// History returns the recent delivery history, newest last.
func (e *Engine) History() []notify.HistoryItem { return e.disp.History() }

// activator handles notification taps: it opens the record's action
// URL with the desktop opener when one is present.
type activator struct {
	log logx.Logger
}

func (a *activator) Activate(rec notify.Record) {
	a.log.Info("notification activated", logx.String("id", rec.ID))
	if rec.ActionURL == "" {
		return
	}
	opener, err := exec.LookPath("xdg-open")
	if err != nil {
		a.log.Debug("no opener for action url", logx.String("url", rec.ActionURL))
		return
	}
	if err := exec.Command(opener, rec.ActionURL).Start(); err != nil {
		a.log.Warn("open action url", logx.Err(err))
	}
}
