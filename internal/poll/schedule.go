package poll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecInterval SpecKind = iota
	SpecCron
)

// Schedule is a parsed poll trigger: either a fixed interval or a cron spec.
type Schedule struct {
	Kind   SpecKind
	Every  time.Duration
	Cron   cron.Schedule
	Source string // "duration" or "cron"
	Raw    string
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const minInterval = 100 * time.Millisecond

// ParseSchedule accepts a plain Go duration ("5s"), a prefixed form
// ("interval:5s", "cron:*/1 * * * *") or a bare cron spec ("@every 5s").
// Empty input defaults to a 5s interval.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{Kind: SpecInterval, Every: 5 * time.Second, Source: "duration", Raw: raw}, nil
	}

	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		return parseInterval(rest, raw)
	}
	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		return parseCron(rest, raw)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return parseIntervalDur(d, raw)
	}
	return parseCron(s, raw)
}

func parseInterval(s, raw string) (Schedule, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q: %w", raw, err)
	}
	return parseIntervalDur(d, raw)
}

func parseIntervalDur(d time.Duration, raw string) (Schedule, error) {
	if d < minInterval {
		return Schedule{}, errors.New("poll interval below " + minInterval.String())
	}
	return Schedule{Kind: SpecInterval, Every: d, Source: "duration", Raw: raw}, nil
}

func parseCron(s, raw string) (Schedule, error) {
	sched, err := parser.Parse(strings.TrimSpace(s))
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return Schedule{Kind: SpecCron, Cron: sched, Source: "cron", Raw: raw}, nil
}

// Next returns the tick after from.
func (s Schedule) Next(from time.Time) time.Time {
	if s.Kind == SpecCron && s.Cron != nil {
		return s.Cron.Next(from)
	}
	return from.Add(s.Every)
}
