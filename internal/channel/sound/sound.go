// Package sound synthesizes short audible cues per notification category.
// No audio assets: each cue is a sine tone with an exponential-decay envelope
// rendered on the fly and handed to a system playback command.
package sound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chime/internal/notify"
	logx "chime/pkg/logx"
)

type Config struct {
	// Player forces a playback command ("paplay", "aplay", "afplay", "bell").
	// Empty auto-detects.
	Player string

	// MuteProbe enables the device mute hint.
	MuteProbe bool
}

type Channel struct {
	player Player
	muter  Muter // nil when probing is off
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Channel {
	c := &Channel{
		player: newExecPlayer(cfg.Player),
		log:    log,
	}
	if cfg.MuteProbe {
		c.muter = pactlMuter{}
	}
	return c
}

// WithPlayer overrides the playback backend. Mostly used by tests.
func (c *Channel) WithPlayer(p Player) *Channel {
	c.player = p
	return c
}

// Play renders and plays the cue for category. Playback failures never
// escape this boundary; only a missing playback capability is reported (as
// notify.ErrUnavailable) so the dispatcher can latch the channel off.
func (c *Channel) Play(ctx context.Context, cat notify.Category) error {
	if c.muter != nil && c.muter.Muted() {
		c.log.Debug("sound skipped: device reports muted", logx.String("category", string(cat)))
		return nil
	}

	freq, dur := toneFor(cat)
	wav := renderWAV(freq, dur)

	// Bound the playback call: cues are sub-second, a stuck player is not
	// worth waiting on.
	pctx, cancel := context.WithTimeout(ctx, dur+2*time.Second)
	defer cancel()

	if err := c.player.Play(pctx, wav); err != nil {
		if errors.Is(err, errNoPlayer) {
			return fmt.Errorf("%w: %v", notify.ErrUnavailable, err)
		}
		c.log.Debug("sound playback failed", logx.String("category", string(cat)), logx.Err(err))
	}
	return nil
}
