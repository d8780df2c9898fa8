// Package badge publishes the unread-count indicator. The count always goes
// out on the event bus; optionally it is also written to a file for
// status-bar/tray consumers. A host without a usable badge sink is a
// permanent soft no-op, not an error.
package badge

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"chime/internal/eventbus"
	"chime/internal/notify"
	logx "chime/pkg/logx"
)

type Config struct {
	// Path of the count file. Empty means bus-only.
	Path string
}

type Publisher struct {
	cfg Config
	bus eventbus.Bus
	log logx.Logger

	mu       sync.Mutex
	last     int
	fileDead bool // latched after the first write failure
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Publisher {
	return &Publisher{cfg: cfg, bus: bus, log: log, last: -1}
}

// Set records the new unread count. Repeated identical counts are dropped.
func (p *Publisher) Set(count int) error {
	if count < 0 {
		count = 0
	}

	p.mu.Lock()
	if count == p.last {
		p.mu.Unlock()
		return nil
	}
	p.last = count
	dead := p.fileDead
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeBadge, Data: count})
	}

	if p.cfg.Path == "" || dead {
		return nil
	}
	if err := writeAtomic(p.cfg.Path, strconv.Itoa(count)); err != nil {
		p.mu.Lock()
		p.fileDead = true
		p.mu.Unlock()
		p.log.Info("badge file unusable; disabling for session",
			logx.String("path", p.cfg.Path), logx.Err(err))
		return fmt.Errorf("%w: badge file: %v", notify.ErrUnavailable, err)
	}
	return nil
}

// Clear zeroes the badge.
func (p *Publisher) Clear() { _ = p.Set(0) }

func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
