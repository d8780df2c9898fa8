package notify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chime/internal/eventbus"
	logx "chime/pkg/logx"
)

// Rejection reasons reported by Gate.Admit.
const (
	RejectActive    = "active"    // same id is still being displayed
	RejectDebounce  = "debounce"  // too soon after the previous dispatch
	RejectMalformed = "malformed" // record has no usable identity/title
)

// GateConfig controls the dedup/debounce gate.
//
// Defaults (when fields are zero):
//   - DebounceWindow: 1s
//   - DisplayLifetime: 8s
//   - EvictionJitter: 300ms
//
// A negative EvictionJitter disables jitter entirely (deterministic
// lifetimes); tests use this to make eviction timing predictable.
type GateConfig struct {
	DebounceWindow  time.Duration
	DisplayLifetime time.Duration
	EvictionJitter  time.Duration
}

func (c GateConfig) withDefaults() GateConfig {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = time.Second
	}
	if c.DisplayLifetime <= 0 {
		c.DisplayLifetime = 8 * time.Second
	}
	if c.EvictionJitter < 0 {
		c.EvictionJitter = 0
	} else if c.EvictionJitter == 0 {
		c.EvictionJitter = 300 * time.Millisecond
	}
	return c
}

// Journal persists the active set across restarts. Satisfied by storage.Store.
type Journal interface {
	PutActive(ctx context.Context, id string, until time.Time) error
	DeleteActive(ctx context.Context, id string) error
	ListActive(ctx context.Context) (map[string]time.Time, error)
}

// Gate decides which notification records are new enough to deliver.
//
// Two independent rejection conditions, evaluated in order:
//  1. identity dedup: the id is already in the active set
//  2. flood control: the previous acceptance was less than DebounceWindow ago
//
// Neither subsumes the other: identity dedup stops the *same* event from
// re-showing on repeated polls; the debounce window stops a burst of
// *different* events from flooding the user.
//
// Admit is a single critical section: the active set and the debounce state
// are only ever touched under g.mu.
type Gate struct {
	mu      sync.Mutex
	cfg     GateConfig
	limiter *rate.Limiter
	active  map[string]*activeEntry

	journal Journal // optional
	bus     eventbus.Bus
	log     logx.Logger

	now func() time.Time
	rng *rand.Rand
	seq uint64 // monotonically increasing eviction-timer version
}

type activeEntry struct {
	rec       Record
	expiresAt time.Time
	timer     *time.Timer
	ver       uint64 // guards stale eviction timers after ClearAll/re-admission
}

func NewGate(cfg GateConfig, bus eventbus.Bus, journal Journal, log logx.Logger) *Gate {
	g := &Gate{
		active:  map[string]*activeEntry{},
		journal: journal,
		bus:     bus,
		log:     log,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	g.applyLocked(cfg)
	return g
}

// Apply swaps gate settings at runtime. The debounce limiter is rebuilt, so a
// reload grants one immediate dispatch slot.
func (g *Gate) Apply(cfg GateConfig) {
	g.mu.Lock()
	g.applyLocked(cfg)
	g.mu.Unlock()
}

func (g *Gate) applyLocked(cfg GateConfig) {
	g.cfg = cfg.withDefaults()
	// Token bucket with burst 1 is exactly a min-spacing gate: one token,
	// regenerating at 1/DebounceWindow.
	g.limiter = rate.NewLimiter(rate.Every(g.cfg.DebounceWindow), 1)
}

// Admit decides whether rec should be dispatched. On acceptance the record
// enters the active set and an eviction timer bounds its display lifetime.
func (g *Gate) Admit(rec Record) (bool, string) {
	if err := rec.Validate(); err != nil {
		g.log.Debug("record dropped", logx.Err(err))
		return false, RejectMalformed
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if _, ok := g.active[rec.ID]; ok {
		g.publishRejected(rec, RejectActive, now)
		return false, RejectActive
	}
	// Identity-rejected records above never consume a debounce token; only a
	// genuinely new record competes for the flood-control slot.
	if !g.limiter.AllowN(now, 1) {
		g.publishRejected(rec, RejectDebounce, now)
		return false, RejectDebounce
	}

	lifetime := g.cfg.DisplayLifetime
	if g.cfg.EvictionJitter > 0 {
		lifetime += time.Duration(g.rng.Int63n(int64(g.cfg.EvictionJitter) + 1))
	}
	g.seq++
	e := &activeEntry{rec: rec, expiresAt: now.Add(lifetime), ver: g.seq}
	g.active[rec.ID] = e
	e.timer = time.AfterFunc(lifetime, g.evictFunc(rec.ID, e.ver))

	if g.journal != nil {
		if err := g.journal.PutActive(context.Background(), rec.ID, e.expiresAt); err != nil {
			g.log.Debug("active journal write failed", logx.String("id", rec.ID), logx.Err(err))
		}
	}
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{Type: eventbus.TypeAccepted, Time: now, Data: rec})
	}
	return true, ""
}

func (g *Gate) publishRejected(rec Record, reason string, now time.Time) {
	g.log.Debug("record rejected", logx.String("id", rec.ID), logx.String("reason", reason))
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{Type: eventbus.TypeRejected, Time: now, Data: RejectedEvent{ID: rec.ID, Reason: reason}})
	}
}

// RejectedEvent is the bus payload for TypeRejected.
type RejectedEvent struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (g *Gate) evictFunc(id string, ver uint64) func() {
	return func() { g.evict(id, ver) }
}

func (g *Gate) evict(id string, ver uint64) {
	g.mu.Lock()
	e, ok := g.active[id]
	if !ok || e.ver != ver {
		// Entry was cleared or re-admitted since this timer was armed.
		g.mu.Unlock()
		return
	}
	delete(g.active, id)
	g.mu.Unlock()

	if g.journal != nil {
		if err := g.journal.DeleteActive(context.Background(), id); err != nil {
			g.log.Debug("active journal delete failed", logx.String("id", id), logx.Err(err))
		}
	}
}

// Contains reports whether id is currently active. Used by the poller as a
// coarse pre-filter before records even reach Admit.
func (g *Gate) Contains(id string) bool {
	g.mu.Lock()
	_, ok := g.active[id]
	g.mu.Unlock()
	return ok
}

func (g *Gate) Size() int {
	g.mu.Lock()
	n := len(g.active)
	g.mu.Unlock()
	return n
}

// Snapshot returns the currently active records (unspecified order).
func (g *Gate) Snapshot() []Record {
	g.mu.Lock()
	out := make([]Record, 0, len(g.active))
	for _, e := range g.active {
		out = append(out, e.rec)
	}
	g.mu.Unlock()
	return out
}

// ClearAll forcibly empties the active set, cancelling all pending eviction
// timers. Returns the number of cleared entries.
func (g *Gate) ClearAll() int {
	g.mu.Lock()
	n := len(g.active)
	ids := make([]string, 0, n)
	for id, e := range g.active {
		if e.timer != nil {
			e.timer.Stop()
		}
		ids = append(ids, id)
	}
	g.active = map[string]*activeEntry{}
	g.mu.Unlock()

	if g.journal != nil {
		for _, id := range ids {
			if err := g.journal.DeleteActive(context.Background(), id); err != nil {
				g.log.Debug("active journal delete failed", logx.String("id", id), logx.Err(err))
			}
		}
	}
	return n
}

// Hydrate restores the active set from the journal, scheduling eviction for
// the remaining lifetime of each entry. Call once before the first Admit.
func (g *Gate) Hydrate(ctx context.Context) {
	if g.journal == nil {
		return
	}
	entries, err := g.journal.ListActive(ctx)
	if err != nil {
		g.log.Warn("active set hydrate failed", logx.Err(err))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for id, until := range entries {
		if !until.After(now) {
			continue
		}
		if _, ok := g.active[id]; ok {
			continue
		}
		g.seq++
		e := &activeEntry{rec: Record{ID: id, Title: id}, expiresAt: until, ver: g.seq}
		g.active[id] = e
		e.timer = time.AfterFunc(until.Sub(now), g.evictFunc(id, e.ver))
	}
	if len(entries) > 0 {
		g.log.Debug("active set hydrated", logx.Int("entries", len(g.active)))
	}
}
