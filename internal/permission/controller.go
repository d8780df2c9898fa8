// Package permission owns the native-notification permission state machine:
// unrequested -> granted | denied, both terminal. The platform is prompted at
// most once per session, no matter how often callers ask.
package permission

import (
	"context"
	"sync"
	"time"

	"chime/internal/eventbus"
	"chime/internal/notify"
	"chime/internal/prefs"
	logx "chime/pkg/logx"
)

// Prompter abstracts the platform permission surface.
//
// Desktop notification servers do not gate delivery on a runtime prompt, so
// the native channel's prompter reports granted when the server is reachable.
// Available() false pins the state at denied for the whole session.
type Prompter interface {
	Available() bool
	Request(ctx context.Context) (granted bool, err error)
}

// Saver persists the resulting preference. Satisfied by *prefs.Store.
type Saver interface {
	Save(ctx context.Context, key string, enabled bool) bool
}

type Controller struct {
	prompter Prompter
	prefs    Saver
	confirm  notify.NativeChannel // optional one-time grant confirmation
	bus      eventbus.Bus
	log      logx.Logger

	mu         sync.Mutex
	state      notify.PermissionState
	requesting bool
}

func New(prompter Prompter, saver Saver, confirm notify.NativeChannel, bus eventbus.Bus, log logx.Logger) *Controller {
	c := &Controller{
		prompter: prompter,
		prefs:    saver,
		confirm:  confirm,
		bus:      bus,
		log:      log,
		state:    notify.PermissionUnrequested,
	}
	// Missing capability is not an error to surface: it is a permanent denied
	// for the session.
	if prompter == nil || !prompter.Available() {
		c.state = notify.PermissionDenied
		c.log.Info("notification permission unavailable; native channel denied for session")
	}
	return c
}

func (c *Controller) Current() notify.PermissionState {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	return st
}

// RequestIfNeeded issues the platform prompt if and only if the state is
// still unrequested. The prompt is user-driven and may block for a long
// time; concurrent callers during an in-flight prompt just see unrequested.
func (c *Controller) RequestIfNeeded(ctx context.Context) notify.PermissionState {
	c.mu.Lock()
	if c.state != notify.PermissionUnrequested || c.requesting {
		st := c.state
		c.mu.Unlock()
		return st
	}
	c.requesting = true
	c.mu.Unlock()

	granted, err := c.prompter.Request(ctx)
	if err != nil {
		c.log.Warn("permission prompt failed", logx.Err(err))
		granted = false
	}

	st := notify.PermissionDenied
	if granted {
		st = notify.PermissionGranted
	}

	c.mu.Lock()
	c.state = st
	c.requesting = false
	c.mu.Unlock()

	c.log.Info("notification permission resolved", logx.String("state", string(st)))
	if c.prefs != nil {
		_ = c.prefs.Save(ctx, prefs.KeyNotifications, granted)
	}
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypePermission, Data: string(st)})
	}

	// Acknowledge a fresh grant to the user through the native channel only;
	// no sound, no toast.
	if granted && c.confirm != nil {
		rec := notify.Record{
			ID:        "permission-granted",
			Title:     "Notifications enabled",
			Message:   "You will now receive desktop notifications.",
			Category:  notify.CategorySuccess,
			CreatedAt: time.Now(),
		}
		if err := c.confirm.Show(ctx, rec); err != nil {
			c.log.Debug("grant confirmation failed", logx.Err(err))
		}
	}
	return st
}
