package sound

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"chime/internal/notify"
	"chime/pkg/logx"
)

func TestToneTable(t *testing.T) {
	tests := []struct {
		cat  notify.Category
		freq float64
		dur  time.Duration
	}{
		{notify.CategoryMessage, 800, 400 * time.Millisecond},
		{notify.CategoryAlert, 1000, 600 * time.Millisecond},
		{notify.CategorySuccess, 600, 400 * time.Millisecond},
		{notify.CategoryError, 1200, 400 * time.Millisecond},
		{notify.Category("unknown"), 800, 400 * time.Millisecond},
	}
	for _, tc := range tests {
		freq, dur := toneFor(tc.cat)
		if freq != tc.freq || dur != tc.dur {
			t.Fatalf("toneFor(%q) = %v Hz, %v; want %v Hz, %v", tc.cat, freq, dur, tc.freq, tc.dur)
		}
	}
}

func TestRenderWAVHeader(t *testing.T) {
	b := renderWAV(800, 400*time.Millisecond)

	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Fatalf("not a RIFF/WAVE container")
	}
	le := binary.LittleEndian
	if got := le.Uint16(b[22:]); got != 1 {
		t.Fatalf("channels = %d, want mono", got)
	}
	if got := le.Uint32(b[24:]); got != sampleRate {
		t.Fatalf("sample rate = %d, want %d", got, sampleRate)
	}
	if got := le.Uint16(b[34:]); got != 16 {
		t.Fatalf("bits per sample = %d", got)
	}

	wantSamples := int(float64(sampleRate) * 0.4)
	if got := le.Uint32(b[40:]); got != uint32(2*wantSamples) {
		t.Fatalf("data chunk = %d bytes, want %d", got, 2*wantSamples)
	}
	if len(b) != 44+2*wantSamples {
		t.Fatalf("total length = %d, want %d", len(b), 44+2*wantSamples)
	}
}

func TestRenderWAVEnvelopeDecays(t *testing.T) {
	b := renderWAV(800, 400*time.Millisecond)
	pcm := b[44:]

	peak := func(from, to int) float64 {
		max := 0.0
		for i := from; i < to; i++ {
			v := math.Abs(float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))))
			if v > max {
				max = v
			}
		}
		return max
	}

	n := len(pcm) / 2
	head := peak(0, n/10)
	tail := peak(n-n/10, n)
	if head <= tail*10 {
		t.Fatalf("envelope did not decay: head peak %v, tail peak %v", head, tail)
	}
	if head > startAmp*math.MaxInt16+1 {
		t.Fatalf("head peak %v above start amplitude", head)
	}
}

type capturePlayer struct {
	wavs [][]byte
	err  error
}

func (p *capturePlayer) Play(_ context.Context, wav []byte) error {
	p.wavs = append(p.wavs, wav)
	return p.err
}

func TestPlayRendersCue(t *testing.T) {
	p := &capturePlayer{}
	c := New(Config{}, logx.Nop()).WithPlayer(p)

	if err := c.Play(context.Background(), notify.CategoryAlert); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(p.wavs) != 1 {
		t.Fatalf("player invoked %d times", len(p.wavs))
	}
	if string(p.wavs[0][0:4]) != "RIFF" {
		t.Fatalf("player did not receive a WAV")
	}
}

func TestPlayMissingPlayerIsUnavailable(t *testing.T) {
	c := New(Config{Player: "no-such-player-cmd"}, logx.Nop())
	err := c.Play(context.Background(), notify.CategoryMessage)
	if !errors.Is(err, notify.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestPlaySwallowsPlaybackFailure(t *testing.T) {
	p := &capturePlayer{err: context.DeadlineExceeded}
	c := New(Config{}, logx.Nop()).WithPlayer(p)

	if err := c.Play(context.Background(), notify.CategoryMessage); err != nil {
		t.Fatalf("transient playback failure must be swallowed, got %v", err)
	}
}
