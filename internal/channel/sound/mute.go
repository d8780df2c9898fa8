package sound

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Muter reports a best-effort device mute hint.
//
// The hint is approximate and may be wrong; it is consulted only by the sound
// channel and must never gate native/toast delivery.
type Muter interface {
	Muted() bool
}

// pactlMuter asks PulseAudio/PipeWire for the default sink's mute flag.
// Any failure (no pactl, no session bus, weird output) reads as "not muted".
type pactlMuter struct{}

func (pactlMuter) Muted() bool {
	if _, err := exec.LookPath("pactl"); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pactl", "get-sink-mute", "@DEFAULT_SINK@").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "yes")
}
