package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chime/internal/eventbus"
	"chime/internal/storage"
	logx "chime/pkg/logx"
)

// ErrUnavailable marks a channel whose platform capability is missing (no
// notification server, no audio output, no badge sink). The dispatcher treats
// it as a permanent soft-disable of that one channel for the session.
var ErrUnavailable = errors.New("channel unavailable")

// Channel contracts. Implementations swallow their own transient failures and
// return errors only for logging/latching; delivery is best-effort.
type SoundChannel interface {
	Play(ctx context.Context, c Category) error
}

type NativeChannel interface {
	Show(ctx context.Context, rec Record) error
}

type ToastChannel interface {
	Show(rec Record)
}

type BadgeChannel interface {
	Set(count int) error
}

// DeliveryAudit is the optional persistence hook for dispatched records.
// Satisfied by storage.Store.
type DeliveryAudit interface {
	AppendDelivery(ctx context.Context, e storage.DeliveryEntry) error
}

// DispatcherDeps wires the fan-out targets and the state the dispatcher
// consults before each channel fires.
type DispatcherDeps struct {
	Sound  SoundChannel
	Native NativeChannel
	Toast  ToastChannel
	Badge  BadgeChannel

	Settings   func() Settings
	Permission func() PermissionState
	ActiveSize func() int

	Audit DeliveryAudit // optional
	Bus   eventbus.Bus  // optional
}

// Dispatcher fans an accepted record out to the sound, native, toast and
// badge channels. Channels are independently gated and isolated: one
// channel's failure never prevents another from firing.
type Dispatcher struct {
	deps DispatcherDeps
	log  logx.Logger

	mu      sync.Mutex
	softOff map[string]bool // channel name -> capability-disabled for session

	hmu         sync.Mutex
	history     []HistoryItem
	historySize int
}

// HistoryItem is one fan-out outcome, kept in a bounded in-memory ring.
type HistoryItem struct {
	At       time.Time
	ID       string
	Category Category
	Title    string
	Channels []string
	Error    string
}

func NewDispatcher(deps DispatcherDeps, historySize int, log logx.Logger) *Dispatcher {
	if historySize <= 0 {
		historySize = 200
	}
	return &Dispatcher{
		deps:        deps,
		log:         log,
		softOff:     map[string]bool{},
		historySize: historySize,
	}
}

// FanOut delivers rec through every enabled channel. Never returns an error:
// per-channel failures are aggregated into one log entry and the history.
func (d *Dispatcher) FanOut(ctx context.Context, rec Record) {
	settings := d.deps.Settings()
	perm := d.deps.Permission()

	var fired []string
	var errs error

	// Sound: enabled flag plus "not explicitly denied". An unrequested
	// permission doesn't mute the cue; only denial does.
	if d.deps.Sound != nil && settings.SoundEnabled && perm != PermissionDenied && !d.off("sound") {
		if err := d.deps.Sound.Play(ctx, rec.Category); err != nil {
			errs = errors.Join(errs, d.channelErr("sound", err))
		} else {
			fired = append(fired, "sound")
		}
	}

	// Native: strictly permission-gated, and the user toggle applies here.
	if d.deps.Native != nil && perm == PermissionGranted && settings.NotificationsEnabled && !d.off("native") {
		if err := d.deps.Native.Show(ctx, rec); err != nil {
			errs = errors.Join(errs, d.channelErr("native", err))
		} else {
			fired = append(fired, "native")
		}
	}

	// Toast: always attempted. It is the fallback surface for users who never
	// grant native permission.
	if d.deps.Toast != nil {
		d.deps.Toast.Show(rec)
		fired = append(fired, "toast")
	}

	// Badge: recomputed from the active set after every dispatch.
	if d.deps.Badge != nil && !d.off("badge") {
		count := 0
		if d.deps.ActiveSize != nil {
			count = d.deps.ActiveSize()
		}
		if err := d.deps.Badge.Set(count); err != nil {
			errs = errors.Join(errs, d.channelErr("badge", err))
		} else {
			fired = append(fired, "badge")
		}
	}

	errStr := ""
	if errs != nil {
		errStr = errs.Error()
		d.log.Warn("partial dispatch",
			logx.String("id", rec.ID),
			logx.String("category", string(rec.Category)),
			logx.Err(errs))
	} else {
		d.log.Debug("dispatched",
			logx.String("id", rec.ID),
			logx.String("category", string(rec.Category)),
			logx.String("channels", strings.Join(fired, ",")))
	}

	d.appendHistory(HistoryItem{
		At:       time.Now(),
		ID:       rec.ID,
		Category: rec.Category,
		Title:    rec.Title,
		Channels: fired,
		Error:    errStr,
	})

	if d.deps.Audit != nil {
		e := storage.DeliveryEntry{
			At:       time.Now(),
			ID:       rec.ID,
			Category: string(rec.Category),
			Title:    rec.Title,
			Channels: strings.Join(fired, ","),
			Error:    errStr,
		}
		if err := d.deps.Audit.AppendDelivery(ctx, e); err != nil {
			d.log.Debug("delivery audit failed", logx.Err(err))
		}
	}
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeDispatched, Data: DispatchedEvent{
			ID:       rec.ID,
			Category: string(rec.Category),
			Channels: fired,
		}})
	}
}

// DispatchedEvent is the bus payload for TypeDispatched.
type DispatchedEvent struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Channels []string `json:"channels"`
}

// channelErr latches capability-unavailable channels off for the session and
// wraps everything else with the channel name.
func (d *Dispatcher) channelErr(name string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		d.mu.Lock()
		already := d.softOff[name]
		d.softOff[name] = true
		d.mu.Unlock()
		if !already {
			d.log.Info("channel disabled for session", logx.String("channel", name), logx.Err(err))
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (d *Dispatcher) off(name string) bool {
	d.mu.Lock()
	v := d.softOff[name]
	d.mu.Unlock()
	return v
}

func (d *Dispatcher) appendHistory(x HistoryItem) {
	d.hmu.Lock()
	d.history = append(d.history, x)
	if len(d.history) > d.historySize {
		d.history = d.history[len(d.history)-d.historySize:]
	}
	d.hmu.Unlock()
}

// History returns a copy of the recent fan-out outcomes.
func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	out := append([]HistoryItem(nil), d.history...)
	d.hmu.Unlock()
	return out
}
