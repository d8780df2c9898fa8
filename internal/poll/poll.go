// Package poll drives notification discovery: it pulls recent records
// from the backend on a schedule and routes them through the admission
// gate into channel fan-out. Out-of-band records (push hooks, test
// sends) can be injected through the same path with Push.
package poll

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chime/internal/notify"
	"chime/pkg/logx"
)

// Source lists recently created notifications, newest last.
type Source interface {
	RecentNotifications(ctx context.Context, limit int) ([]notify.Record, error)
}

// Sink is the admission gate the loop feeds discovered records into.
type Sink interface {
	Contains(id string) bool
	Admit(rec notify.Record) (bool, string)
}

// Dispatcher fans an accepted record out to the delivery channels.
type Dispatcher interface {
	FanOut(ctx context.Context, rec notify.Record)
}

type Config struct {
	Enabled  bool
	Schedule string
	Limit    int
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 20
	}
	return c
}

// Loop owns the poll goroutine. Start/Stop are safe to call repeatedly.
type Loop struct {
	source Source
	sink   Sink
	disp   Dispatcher
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	sched   Schedule
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// failLog throttles repeated backend failure logging.
	failLog *rate.Limiter
}

func NewLoop(cfg Config, src Source, sink Sink, disp Dispatcher, log logx.Logger) (*Loop, error) {
	cfg = cfg.withDefaults()
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Loop{
		source:  src,
		sink:    sink,
		disp:    disp,
		log:     log.With(logx.String("svc", "poll")),
		cfg:     cfg,
		sched:   sched,
		failLog: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}, nil
}

// Apply swaps the schedule and limit in place. The running loop picks
// up the new schedule on its next tick.
func (l *Loop) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.sched = sched
	l.mu.Unlock()
	return nil
}

func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running || !l.cfg.Enabled {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	stop, done := l.stopCh, l.doneCh
	l.mu.Unlock()

	l.log.Info("poll loop started", logx.String("schedule", l.schedule().Raw))
	go l.run(ctx, stop, done)
}

func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stop)
	<-done
	l.log.Info("poll loop stopped")
}

func (l *Loop) schedule() Schedule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched
}

func (l *Loop) limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Limit
}

func (l *Loop) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Until(l.schedule().Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-timer.C:
			l.tick(ctx)
			timer.Reset(time.Until(l.schedule().Next(time.Now())))
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	recs, err := l.source.RecentNotifications(tctx, l.limit())
	if err != nil {
		if l.failLog.Allow() {
			l.log.Warn("poll fetch failed", logx.Err(err))
		}
		return
	}
	for _, rec := range recs {
		l.deliver(ctx, rec)
	}
}

// Push routes a single record through the same admit/fan-out path the
// poll tick uses.
func (l *Loop) Push(ctx context.Context, rec notify.Record) bool {
	return l.deliver(ctx, rec)
}

func (l *Loop) deliver(ctx context.Context, rec notify.Record) bool {
	if err := rec.Validate(); err != nil {
		l.log.Debug("dropping malformed record", logx.String("id", rec.ID), logx.Err(err))
		return false
	}
	// Cheap pre-filter. Admit repeats the check under its own lock.
	if l.sink.Contains(rec.ID) {
		return false
	}
	ok, reason := l.sink.Admit(rec)
	if !ok {
		l.log.Debug("record rejected", logx.String("id", rec.ID), logx.String("reason", reason))
		return false
	}
	l.disp.FanOut(ctx, rec)
	return true
}
