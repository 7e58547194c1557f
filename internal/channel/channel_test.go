package channel

import (
	"testing"

	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliderLinearReachesTargetExactly(t *testing.T) {
	s := NewSlider(SlideLinear)
	s.SetSampleRate(100)
	s.SetTempo(120)
	s.SetLength(tstamp.New(0, tstamp.BeatDivisor/2))
	s.Start(10, 0)

	require.True(t, s.InProgress())
	var last float64
	for i := 0; i < 10000 && s.InProgress(); i++ {
		last = s.Step()
	}
	assert.False(t, s.InProgress())
	assert.Equal(t, 10.0, last)
}

func TestSliderBreakFreezesValue(t *testing.T) {
	s := NewSlider(SlideLinear)
	s.SetSampleRate(100)
	s.SetTempo(120)
	s.SetLength(tstamp.New(1, 0))
	s.Start(10, 0)
	s.Step()
	s.Break()
	assert.False(t, s.InProgress())
	v := s.Value()
	for i := 0; i < 5; i++ {
		assert.Equal(t, v, s.Step())
	}
}

func TestChannelResetClearsForceAndPitch(t *testing.T) {
	ch := New(3)
	ch.SetSampleRate(44100)
	ch.SetTempo(120)
	ch.CacheEvent("set_force", 0.5)
	ch.ForceSlide.Start(2, 1)
	ch.Pitch = 3

	ch.Reset()

	assert.Equal(t, 1.0, ch.Force)
	assert.Equal(t, 0.0, ch.Pitch)
	_, ok := ch.CachedArg("set_force")
	assert.False(t, ok)
	assert.Equal(t, 44100, ch.SampleRate)
	assert.Equal(t, 120.0, ch.TempoBPM)
}

func TestEventCacheRoundTrip(t *testing.T) {
	ch := New(0)
	ch.CacheEvent("slide_force", 0.75)
	arg, ok := ch.CachedArg("slide_force")
	require.True(t, ok)
	assert.Equal(t, 0.75, arg)
}

func TestRandomDeterministicForSeed(t *testing.T) {
	var a, b Random
	a.SetSeed(42)
	b.SetSeed(42)
	for i := 0; i < 16; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}
