// Package channel implements per-channel playback state: value sliders,
// LFOs, a per-channel deterministic random source, and the event cache a
// channel uses to remember its last-fired arguments (spec.md §4.6),
// ported from original_source's Slider.c and Channel_state.c/Channel.c.
package channel

import (
	"math"

	"github.com/kagu/kunquat/internal/tstamp"
)

// SlideMode selects linear or exponential interpolation, mirroring
// Slider.h's Slide_mode enum.
type SlideMode int

const (
	SlideLinear SlideMode = iota
	SlideExponential
)

// Slider ramps a value toward a target over a fixed Tstamp length,
// rescaling its per-step update whenever the sample rate or tempo changes
// mid-slide (Slider.c's Slider_set_mix_rate/Slider_set_tempo).
type Slider struct {
	mode SlideMode

	sampleRate int
	tempoBPM   float64

	length tstamp.Tstamp

	dir          int
	current      float64
	target       float64
	stepsLeft    float64
	update       float64
}

// NewSlider creates a slider in the given mode with zero length (any
// Start call before SetLength completes instantly).
func NewSlider(mode SlideMode) *Slider {
	s := &Slider{mode: mode}
	if mode == SlideExponential {
		s.update = 1
	}
	return s
}

// SetSampleRate updates the slider's notion of the audio rate, rescaling
// an in-progress slide's remaining steps and per-step update so its wall-
// clock duration is preserved (Slider_set_mix_rate).
func (s *Slider) SetSampleRate(rate int) {
	if s.dir == 0 {
		s.sampleRate = rate
		return
	}
	s.rescale(rate, s.tempoBPM)
}

// SetTempo updates the slider's notion of tempo, rescaling the same way
// SetSampleRate does (Slider_set_tempo).
func (s *Slider) SetTempo(bpm float64) {
	if s.dir == 0 {
		s.tempoBPM = bpm
		return
	}
	s.rescale(s.sampleRate, bpm)
}

func (s *Slider) rescale(rate int, bpm float64) {
	if s.sampleRate == 0 || s.tempoBPM == 0 {
		s.sampleRate, s.tempoBPM = rate, bpm
		return
	}
	if s.mode == SlideExponential {
		logUpdate := math.Log2(s.update)
		logUpdate *= float64(s.sampleRate) / float64(rate)
		logUpdate *= bpm / s.tempoBPM
		s.update = math.Exp2(logUpdate)
	} else {
		s.update *= float64(s.sampleRate) / float64(rate)
		s.update *= bpm / s.tempoBPM
	}
	s.stepsLeft *= float64(rate) / float64(s.sampleRate)
	s.stepsLeft *= s.tempoBPM / bpm
	s.sampleRate, s.tempoBPM = rate, bpm
}

// SetLength sets the slide duration; an in-progress slide is restarted
// from its current value toward its existing target over the new length
// (Slider_set_length).
func (s *Slider) SetLength(length tstamp.Tstamp) {
	s.length = length
	if s.dir != 0 {
		s.Start(s.target, s.current)
	}
}

// Start begins a slide from start to target over the slider's configured
// length (Slider_start).
func (s *Slider) Start(target, start float64) {
	s.stepsLeft = float64(tstamp.ToFrames(s.length, s.tempoBPM, int64(s.sampleRate)))
	if s.stepsLeft <= 0 {
		s.stepsLeft = 1
	}
	s.current = start
	s.target = target

	zeroSlide := 0.0
	if s.mode == SlideExponential {
		zeroSlide = 1
		s.update = math.Exp2((math.Log2(target) - math.Log2(start)) / s.stepsLeft)
	} else {
		s.update = (target - start) / s.stepsLeft
	}
	switch {
	case s.update > zeroSlide:
		s.dir = 1
	case s.update < zeroSlide:
		s.dir = -1
	default:
		s.dir = 0
		s.current = s.target
		s.stepsLeft = 0
	}
}

// ChangeTarget retargets an in-progress slide, restarting it from the
// current value over the slider's full configured length; a slider at
// rest simply records the new target for the next Start
// (Slider_change_target).
func (s *Slider) ChangeTarget(target float64) {
	s.target = target
	if s.dir != 0 {
		s.Start(target, s.current)
	}
}

// Step advances the slider by one frame and returns the new current
// value (Slider_step).
func (s *Slider) Step() float64 {
	if s.dir == 0 {
		return s.target
	}
	if s.mode == SlideExponential {
		s.current *= s.update
	} else {
		s.current += s.update
	}
	s.stepsLeft--
	if s.stepsLeft <= 0 {
		s.dir = 0
		s.current = s.target
	} else if s.dir == 1 {
		if s.current > s.target {
			s.current = s.target
			s.dir = 0
		}
	} else if s.current < s.target {
		s.current = s.target
		s.dir = 0
	}
	return s.current
}

// Break halts the slide immediately, freezing at the current value
// (Slider_break).
func (s *Slider) Break() {
	s.target = s.current
	s.dir = 0
	s.stepsLeft = 0
	s.update = 0
}

// InProgress reports whether the slider is still moving (Slider_in_progress).
func (s *Slider) InProgress() bool { return s.dir != 0 }

// Value returns the slider's current value without advancing it.
func (s *Slider) Value() float64 { return s.current }

// LFO is a low-frequency oscillator modulating a carried value, mirroring
// the depth/speed/sign fields Channel_state.c keeps for vibrato/tremolo
// control streams.
type LFO struct {
	sampleRate int
	speedHz    float64
	depth      float64
	phase      float64
	on         bool

	depthSlide *Slider
	speedSlide *Slider
}

// NewLFO creates a disabled LFO with linear depth/speed ramps.
func NewLFO() *LFO {
	return &LFO{depthSlide: NewSlider(SlideLinear), speedSlide: NewSlider(SlideLinear)}
}

// SetSampleRate propagates the audio rate to the LFO and its ramps.
func (l *LFO) SetSampleRate(rate int) {
	l.sampleRate = rate
	l.depthSlide.SetSampleRate(rate)
	l.speedSlide.SetSampleRate(rate)
}

// SetTempo propagates tempo to the LFO's ramps.
func (l *LFO) SetTempo(bpm float64) {
	l.depthSlide.SetTempo(bpm)
	l.speedSlide.SetTempo(bpm)
}

// SetDepth retargets the oscillation depth, ramping via depthSlide.
func (l *LFO) SetDepth(depth float64) { l.depthSlide.ChangeTarget(depth) }

// SetSpeed retargets the oscillation speed in Hz, ramping via speedSlide.
func (l *LFO) SetSpeed(hz float64) { l.speedSlide.ChangeTarget(hz) }

// Enable turns the oscillator on or off; a disabled LFO always steps to 0.
func (l *LFO) Enable(on bool) { l.on = on }

// Step advances the LFO by one frame and returns its current
// contribution: a sine wave of the current depth and speed.
func (l *LFO) Step() float64 {
	l.depth = l.depthSlide.Step()
	l.speedHz = l.speedSlide.Step()
	if !l.on || l.depth == 0 {
		return 0
	}
	if l.sampleRate > 0 {
		l.phase += 2 * math.Pi * l.speedHz / float64(l.sampleRate)
		if l.phase > 2*math.Pi {
			l.phase -= 2 * math.Pi
		}
	}
	return l.depth * math.Sin(l.phase)
}
