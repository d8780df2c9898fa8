package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var errNoPlayer = errors.New("no audio player found")

// Player takes a rendered WAV clip and makes it audible.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// execPlayer pipes the clip to the first available system playback command.
// An explicit command from config wins over auto-detection.
type execPlayer struct {
	command string
}

func newExecPlayer(command string) Player {
	return &execPlayer{command: strings.TrimSpace(command)}
}

func (p *execPlayer) Play(ctx context.Context, wav []byte) error {
	name := p.command
	if name == "bell" {
		return ringBell()
	}
	if name == "" {
		for _, cand := range []string{"paplay", "aplay", "afplay"} {
			if _, err := exec.LookPath(cand); err == nil {
				name = cand
				break
			}
		}
	}
	if name == "" {
		return errNoPlayer
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", errNoPlayer, name)
	}

	switch filepath.Base(name) {
	case "afplay":
		// afplay cannot read stdin; hand it a temp file.
		f, err := os.CreateTemp("", "chime-*.wav")
		if err != nil {
			return err
		}
		defer func() { _ = os.Remove(f.Name()) }()
		if _, err := f.Write(wav); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return exec.CommandContext(ctx, name, f.Name()).Run()
	case "aplay":
		cmd := exec.CommandContext(ctx, name, "-q")
		cmd.Stdin = bytes.NewReader(wav)
		return cmd.Run()
	default:
		cmd := exec.CommandContext(ctx, name)
		cmd.Stdin = bytes.NewReader(wav)
		return cmd.Run()
	}
}

// ringBell is the last-resort cue: the terminal bell.
func ringBell() error {
	_, err := os.Stdout.WriteString("\a")
	return err
}
