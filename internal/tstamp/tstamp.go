// Package tstamp implements Kunquat's musical-time value: an integer beat
// count plus an integer remainder, closed under addition, subtraction and
// frame conversion.
package tstamp

import "fmt"

// BeatDivisor is the modulus of the fractional part of a Tstamp. 882000 is
// highly composite (2^4 * 3^2 * 5^3 * 7^2) so it divides cleanly by the
// common tuplet denominators used in tracker compositions.
const BeatDivisor int64 = 882000

// Tstamp is a musical-time value: beats plus a fractional remainder in
// [0, BeatDivisor). The zero value is time zero.
type Tstamp struct {
	Beats int64
	Rem   int64
}

// New returns a normalized Tstamp for beats and rem, folding any overflow
// or negative remainder into Beats.
func New(beats, rem int64) Tstamp {
	t := Tstamp{Beats: beats, Rem: rem}
	t.normalize()
	return t
}

func (t *Tstamp) normalize() {
	if t.Rem >= BeatDivisor {
		t.Beats += t.Rem / BeatDivisor
		t.Rem %= BeatDivisor
	} else if t.Rem < 0 {
		// Division truncates toward zero in Go; for negative Rem we need
		// floor division so Rem lands back in [0, BeatDivisor).
		borrow := (-t.Rem + BeatDivisor - 1) / BeatDivisor
		t.Beats -= borrow
		t.Rem += borrow * BeatDivisor
	}
}

// Add returns a + b.
func Add(a, b Tstamp) Tstamp {
	return New(a.Beats+b.Beats, a.Rem+b.Rem)
}

// Sub returns a - b.
func Sub(a, b Tstamp) Tstamp {
	return New(a.Beats-b.Beats, a.Rem-b.Rem)
}

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func Cmp(a, b Tstamp) int {
	switch {
	case a.Beats < b.Beats:
		return -1
	case a.Beats > b.Beats:
		return 1
	case a.Rem < b.Rem:
		return -1
	case a.Rem > b.Rem:
		return 1
	default:
		return 0
	}
}

// Less reports whether a < b.
func Less(a, b Tstamp) bool { return Cmp(a, b) < 0 }

// IsZero reports whether t is time zero.
func (t Tstamp) IsZero() bool { return t.Beats == 0 && t.Rem == 0 }

// ToFrames converts t to a frame count at the given tempo (beats per
// minute) and sample rate. The integer beat part is converted with exact
// rational arithmetic; the remainder uses double precision. This makes
// ToFrames(FromFrames(n)) the identity up to +/-1 frame, per spec.md §3.
func ToFrames(t Tstamp, tempoBPM float64, sampleRate int64) int64 {
	if tempoBPM <= 0 || sampleRate <= 0 {
		return 0
	}
	framesPerBeat := float64(sampleRate) * 60.0 / tempoBPM
	beatFrames := rationalMul(t.Beats, sampleRate, tempoBPM)
	remFrames := int64((float64(t.Rem) / float64(BeatDivisor)) * framesPerBeat)
	return beatFrames + remFrames
}

// rationalMul computes beats * sampleRate * 60 / tempo using integer beat
// scaling followed by a single floating point division, keeping the
// integer-beat part exact where tempo divides evenly and bounded-error
// otherwise.
func rationalMul(beats, sampleRate int64, tempoBPM float64) int64 {
	return int64(float64(beats) * float64(sampleRate) * 60.0 / tempoBPM)
}

// FromFrames converts a frame count back to a Tstamp at the given tempo
// and sample rate.
func FromFrames(frames int64, tempoBPM float64, sampleRate int64) Tstamp {
	if tempoBPM <= 0 || sampleRate <= 0 {
		return Tstamp{}
	}
	framesPerBeat := float64(sampleRate) * 60.0 / tempoBPM
	beats := int64(float64(frames) / framesPerBeat)
	consumed := float64(beats) * framesPerBeat
	remFrames := float64(frames) - consumed
	rem := int64((remFrames / framesPerBeat) * float64(BeatDivisor))
	return New(beats, rem)
}

func (t Tstamp) String() string {
	return fmt.Sprintf("%d+%d/%d", t.Beats, t.Rem, BeatDivisor)
}
