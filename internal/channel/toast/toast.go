// Package toast keeps the in-app notification surface: a bounded feed of
// transient entries with timed auto-dismiss. It is the fallback channel that
// always fires, whatever the native permission state is. Rendering belongs to
// UI collaborators, which read Visible() and listen on the bus; this package
// owns lifecycle timing only.
package toast

import (
	"sync"
	"time"

	"chime/internal/eventbus"
	"chime/internal/notify"
	logx "chime/pkg/logx"
)

type State string

const (
	StateVisible State = "visible"
	StateFading  State = "fading"
)

type Config struct {
	Lifetime   time.Duration // default 8s
	FadeGrace  time.Duration // default 300ms
	MaxVisible int           // default 5
}

func (c Config) withDefaults() Config {
	if c.Lifetime <= 0 {
		c.Lifetime = 8 * time.Second
	}
	if c.FadeGrace <= 0 {
		c.FadeGrace = 300 * time.Millisecond
	}
	if c.MaxVisible <= 0 {
		c.MaxVisible = 5
	}
	return c
}

// Toast is one feed entry as exposed to UI collaborators.
type Toast struct {
	Seq     uint64
	Record  notify.Record
	ShownAt time.Time
	State   State
}

type item struct {
	toast Toast
	timer *time.Timer
}

type Feed struct {
	cfg       Config
	bus       eventbus.Bus
	activator notify.Activator // optional
	log       logx.Logger

	mu    sync.Mutex
	items map[uint64]*item
	order []uint64
	seq   uint64
	now   func() time.Time
}

func New(cfg Config, bus eventbus.Bus, activator notify.Activator, log logx.Logger) *Feed {
	return &Feed{
		cfg:       cfg.withDefaults(),
		bus:       bus,
		activator: activator,
		log:       log,
		items:     map[uint64]*item{},
		now:       time.Now,
	}
}

// Show appends rec to the feed and schedules its dismissal: Lifetime of
// visibility, then a FadeGrace in the fading state before removal.
func (f *Feed) Show(rec notify.Record) {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	it := &item{toast: Toast{
		Seq:     seq,
		Record:  rec,
		ShownAt: f.now(),
		State:   StateVisible,
	}}
	f.items[seq] = it
	f.order = append(f.order, seq)
	it.timer = time.AfterFunc(f.cfg.Lifetime, func() { f.fade(seq) })

	// Over capacity: push the oldest straight into fading.
	var evict uint64
	if len(f.items) > f.cfg.MaxVisible {
		for _, old := range f.order {
			if it, ok := f.items[old]; ok && it.toast.State == StateVisible {
				evict = old
				break
			}
		}
	}
	f.mu.Unlock()

	if evict != 0 && evict != seq {
		f.fade(evict)
	}
	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: eventbus.TypeToastShown, Data: rec})
	}
}

func (f *Feed) fade(seq uint64) {
	f.mu.Lock()
	it, ok := f.items[seq]
	if !ok || it.toast.State != StateVisible {
		f.mu.Unlock()
		return
	}
	it.toast.State = StateFading
	if it.timer != nil {
		it.timer.Stop()
	}
	it.timer = time.AfterFunc(f.cfg.FadeGrace, func() { f.remove(seq) })
	f.mu.Unlock()
}

func (f *Feed) remove(seq uint64) {
	f.mu.Lock()
	it, ok := f.items[seq]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(f.items, seq)
	for i, s := range f.order {
		if s == seq {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: eventbus.TypeToastGone, Data: it.toast.Record})
	}
}

// Visible returns the current feed, oldest first.
func (f *Feed) Visible() []Toast {
	f.mu.Lock()
	out := make([]Toast, 0, len(f.order))
	for _, seq := range f.order {
		if it, ok := f.items[seq]; ok {
			out = append(out, it.toast)
		}
	}
	f.mu.Unlock()
	return out
}

// Tap is the activation path for a toast: foreground focus plus action URL
// navigation via the activator. Membership in the active set is unaffected.
func (f *Feed) Tap(seq uint64) {
	f.mu.Lock()
	it, ok := f.items[seq]
	f.mu.Unlock()
	if !ok {
		return
	}
	if f.activator != nil {
		f.activator.Activate(it.toast.Record)
	}
}

// DismissAll drops every entry immediately (no fade), cancelling timers.
func (f *Feed) DismissAll() {
	f.mu.Lock()
	seqs := append([]uint64(nil), f.order...)
	for _, seq := range seqs {
		if it, ok := f.items[seq]; ok && it.timer != nil {
			it.timer.Stop()
		}
	}
	f.mu.Unlock()

	for _, seq := range seqs {
		f.remove(seq)
	}
}
