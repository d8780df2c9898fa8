package sound

import (
	"encoding/binary"
	"math"
	"time"

	"chime/internal/notify"
)

const (
	sampleRate = 44100
	startAmp   = 0.6
	// floorAmp is where the exponential envelope ends up: quiet enough that
	// the cutoff is inaudible (no click), not a hard zero.
	floorAmp = 0.001
)

// toneFor maps a notification category to its cue parameters.
func toneFor(c notify.Category) (freqHz float64, dur time.Duration) {
	switch c {
	case notify.CategoryAlert:
		return 1000, 600 * time.Millisecond
	case notify.CategorySuccess:
		return 600, 400 * time.Millisecond
	case notify.CategoryError:
		return 1200, 400 * time.Millisecond
	default: // message
		return 800, 400 * time.Millisecond
	}
}

// renderWAV synthesizes a mono 16-bit PCM sine at freqHz whose amplitude
// decays exponentially from startAmp to floorAmp over dur, wrapped in a
// minimal RIFF/WAVE container.
func renderWAV(freqHz float64, dur time.Duration) []byte {
	n := int(float64(sampleRate) * dur.Seconds())
	if n <= 0 {
		n = 1
	}
	// amp(t) = startAmp * exp(-k*t) with amp(dur) == floorAmp.
	k := math.Log(startAmp/floorAmp) / dur.Seconds()

	data := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		amp := startAmp * math.Exp(-k*t)
		s := amp * math.Sin(2*math.Pi*freqHz*t)
		v := int16(s * math.MaxInt16)
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	return wrapWAV(data)
}

// wrapWAV prefixes raw 16-bit mono PCM with a RIFF header.
func wrapWAV(pcm []byte) []byte {
	const headerLen = 44
	out := make([]byte, headerLen+len(pcm))

	le := binary.LittleEndian
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:], 16) // PCM fmt chunk size
	le.PutUint16(out[20:], 1)  // PCM
	le.PutUint16(out[22:], 1)  // mono
	le.PutUint32(out[24:], sampleRate)
	le.PutUint32(out[28:], sampleRate*2) // byte rate
	le.PutUint16(out[32:], 2)            // block align
	le.PutUint16(out[34:], 16)           // bits per sample

	copy(out[36:40], "data")
	le.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[headerLen:], pcm)
	return out
}
