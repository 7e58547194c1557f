package channel

import (
	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/kagu/kunquat/internal/voice"
)

// Random is a small deterministic PRNG seeded per channel, standing in
// for original_source's Random.c so arpeggio/note-expression jitter is
// reproducible across runs given the same seed (spec.md §4.6 "per-channel
// Random").
type Random struct {
	state uint64
}

// SetSeed reseeds the generator; channel N's default seed is derived from
// its index so distinct channels never share a stream (Channel_init's
// "chXX" context string serves the same purpose in the original).
func (r *Random) SetSeed(seed uint64) { r.state = seed ^ 0x9E3779B97F4A7C15 }

// Next returns the generator's next value via a splitmix64 step, a small
// well-distributed generator suitable for this deterministic-jitter role.
func (r *Random) Next() uint64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Float64 returns a uniform value in [0, 1).
func (r *Random) Float64() float64 {
	return float64(r.Next()>>11) / (1 << 53)
}

// EventCacheEntry remembers the most recent argument fired for one event
// name on a channel, so a subsequent event with no explicit argument can
// carry the previous one forward (Event_cache.c's role, spec.md §4.6
// "event cache").
type EventCacheEntry struct {
	EventName string
	Arg       interface{}
}

// Channel is one channel's full playback state: force/pitch/filter
// sliders and their LFOs, panning, arpeggio, the per-channel Random
// source, the event cache, and the channel's live foreground voice group
// (spec.md §3 "Channel", §4.6), grounded on player/Channel.c and
// Channel_state.c.
type Channel struct {
	Num int

	SampleRate int
	TempoBPM   float64

	AUInput int // the audio unit index notes on this channel target

	// Force.
	Force         float64
	ForceSlide    *Slider
	Tremolo       *LFO
	CarryForce    bool

	// Pitch.
	Pitch         float64
	OrigPitch     float64
	PitchSlide    *Slider
	Vibrato       *LFO
	CarryPitch    bool

	// Filter.
	FilterCutoff    float64
	FilterSlide     *Slider
	Autowah         *LFO
	ResonanceSlide  *Slider
	CarryFilter     bool

	Panning       float64
	PanningSlide  *Slider

	ArpeggioRef   float64
	ArpeggioSpeed float64
	ArpeggioTones [2]float64
	ArpeggioOn    bool
	ArpeggioScale string

	Rand Random

	EventCache map[string]EventCacheEntry

	// Streams holds this channel's named control-variable streams
	// (spec.md §4.6 "A mapping stream_name -> linear_controls"); Carried
	// marks which stream names a new voice should inherit at note-on
	// rather than fall back to its processor default.
	Streams map[string]float64
	Carried map[string]bool

	// PendingExpr is the channel-expression tag applied to every voice in
	// the next note-on's group (spec.md §4.5 "each voice carries two
	// expression tags").
	PendingExpr string

	// ForegroundGroup is the voice group this channel last started, the
	// one future control events and note-offs target until the channel
	// starts a new note (spec.md §4.3 "Foreground/background transition").
	ForegroundGroup *voice.Group
}

// New constructs a channel at rest, matching Channel_reset's defaults.
func New(num int) *Channel {
	ch := &Channel{
		Num:            num,
		Force:          1,
		ForceSlide:     NewSlider(SlideLinear),
		Tremolo:        NewLFO(),
		PitchSlide:     NewSlider(SlideLinear),
		Vibrato:        NewLFO(),
		OrigPitch:      0,
		FilterSlide:    NewSlider(SlideLinear),
		Autowah:        NewLFO(),
		ResonanceSlide: NewSlider(SlideLinear),
		PanningSlide:   NewSlider(SlideLinear),
		ArpeggioSpeed:  24,
		ArpeggioTones:  [2]float64{0, 0},
		ArpeggioScale:  "chromatic",
		EventCache:     make(map[string]EventCacheEntry),
		Streams:        make(map[string]float64),
		Carried:        make(map[string]bool),
	}
	ch.Rand.SetSeed(uint64(num))
	return ch
}

// SetSampleRate propagates the audio rate to every slider and LFO the
// channel owns (Channel_set_audio_rate).
func (ch *Channel) SetSampleRate(rate int) {
	ch.SampleRate = rate
	for _, s := range ch.sliders() {
		s.SetSampleRate(rate)
	}
	for _, l := range ch.lfos() {
		l.SetSampleRate(rate)
	}
}

// SetTempo propagates tempo to every slider and LFO (Channel_set_tempo).
func (ch *Channel) SetTempo(bpm float64) {
	ch.TempoBPM = bpm
	for _, s := range ch.sliders() {
		s.SetTempo(bpm)
	}
	for _, l := range ch.lfos() {
		l.SetTempo(bpm)
	}
}

func (ch *Channel) sliders() []*Slider {
	return []*Slider{ch.ForceSlide, ch.PitchSlide, ch.FilterSlide, ch.ResonanceSlide, ch.PanningSlide}
}

func (ch *Channel) lfos() []*LFO {
	return []*LFO{ch.Tremolo, ch.Vibrato, ch.Autowah}
}

// Reset restores the channel to its post-construction defaults, keeping
// its number, sample rate and tempo but replacing the event cache with an
// empty one and every slider/LFO with a fresh one (Channel_reset).
func (ch *Channel) Reset() {
	num := ch.Num
	sampleRate := ch.SampleRate
	tempo := ch.TempoBPM
	*ch = *New(num)
	ch.SampleRate = sampleRate
	ch.TempoBPM = tempo
}

// Step advances every slider and LFO by one frame, applying their output
// to the channel's live force/pitch/filter values. Called once per frame
// from the player's render loop (spec.md §4.7).
func (ch *Channel) Step() {
	ch.Force = ch.ForceSlide.Step() + ch.Tremolo.Step()
	ch.Pitch = ch.PitchSlide.Step() + ch.Vibrato.Step()
	ch.FilterCutoff = ch.FilterSlide.Step() + ch.Autowah.Step()
	ch.Panning = ch.PanningSlide.Step()
}

// CacheEvent records evName's argument as the channel's carried value for
// that event name, so a later event omitting its argument can reuse it
// (Event_cache's role).
func (ch *Channel) CacheEvent(evName string, arg interface{}) {
	ch.EventCache[evName] = EventCacheEntry{EventName: evName, Arg: arg}
}

// CachedArg returns the last argument fired for evName and whether one
// was ever recorded.
func (ch *Channel) CachedArg(evName string) (interface{}, bool) {
	e, ok := ch.EventCache[evName]
	if !ok {
		return nil, false
	}
	return e.Arg, true
}

// SetStream records value as the current level of the named control
// stream, and whether it is carried onto future voices at note-on
// (spec.md §4.6 "A channel may carry a stream: on note-on the voice
// inherits the channel's current stream value rather than the processor
// default").
func (ch *Channel) SetStream(name string, value float64, carry bool) {
	ch.Streams[name] = value
	ch.Carried[name] = carry
}

// CarriedStreams returns the name/value pairs of every stream currently
// marked carried, for a newly allocated voice to copy onto its state.
func (ch *Channel) CarriedStreams() map[string]float64 {
	out := make(map[string]float64, len(ch.Carried))
	for name, on := range ch.Carried {
		if on {
			out[name] = ch.Streams[name]
		}
	}
	return out
}

// SlideLength is a convenience wrapper turning a beats+rem pair into the
// Tstamp a slider needs, matching the original's Tstamp_set call sites.
func SlideLength(beats, rem int64) tstamp.Tstamp { return tstamp.New(beats, rem) }
