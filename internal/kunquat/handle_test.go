package kunquat

import (
	"testing"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/event"
	"github.com/kagu/kunquat/internal/position"
	"github.com/kagu/kunquat/internal/processor"
	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietTracks() []*position.Track {
	return []*position.Track{{Systems: []*position.System{{Instances: []*position.PatternInstance{
		{Length: tstamp.New(1000, 0)},
	}}}}}
}

func debugHandle(t *testing.T, voices int) *Handle {
	t.Helper()
	h, err := NewHandle(220, 128, voices)
	require.NoError(t, err)

	shared := &device.Shared{SampleRate: 220, BufferSize: 128, TempoBPM: 120}
	debug := processor.NewDebug(0, shared, h.Player.Bufs)
	require.NoError(t, h.SetInstrument(0, nil, []device.Processor{debug}))
	require.NoError(t, h.SetMixedGraph(
		[]device.Connection{
			{SrcDevice: 0, SrcPort: 0, DstDevice: device.MasterID, DstPort: 0},
			{SrcDevice: 0, SrcPort: 1, DstDevice: device.MasterID, DstPort: 1},
		},
		map[int]device.Processor{},
	))
	require.NoError(t, h.BindChannel(0, 0))
	require.NoError(t, h.Validate(nil))
	h.SetTracks(quietTracks())
	return h
}

func TestNewHandleRejectsNonPositiveArgs(t *testing.T) {
	_, err := NewHandle(0, 128, 4)
	assert.Error(t, err)
	_, err = NewHandle(220, 0, 4)
	assert.Error(t, err)
	_, err = NewHandle(220, 128, 0)
	assert.Error(t, err)
}

func TestFireNoteOnProducesAudible(t *testing.T) {
	h := debugHandle(t, 4)
	require.NoError(t, h.Fire(0, `["n+",55.0]`))

	out := h.Play(128)
	assert.InDelta(t, 1.0, out[0], 1e-9)
	assert.InDelta(t, 1.0, out[1], 1e-9)
}

func TestFireUnknownEventIsArgumentError(t *testing.T) {
	h := debugHandle(t, 4)
	err := h.Fire(0, `["nonexistent",1.0]`)
	assert.Error(t, err)
	assert.Equal(t, err.Error(), h.GetError())
}

func TestFireMalformedJSONSetsError(t *testing.T) {
	h := debugHandle(t, 4)
	err := h.Fire(0, `not json`)
	assert.Error(t, err)
	assert.NotEmpty(t, h.GetError())
}

func TestPlayClearsPriorError(t *testing.T) {
	h := debugHandle(t, 4)
	require.Error(t, h.Fire(0, `["nonexistent",1.0]`))
	require.NotEmpty(t, h.GetError())

	h.Play(16)
	assert.Empty(t, h.GetError())
}

func TestFireNoteOffStopsVoice(t *testing.T) {
	h := debugHandle(t, 4)
	require.NoError(t, h.Fire(0, `["n+",55.0]`))
	h.Play(32)
	require.NoError(t, h.Fire(0, `["n-",null]`))

	// after note-off, decayed output eventually quiets without erroring.
	out := h.Play(256)
	assert.Len(t, out, 512)
}

func TestMasterVolumeEventRamps(t *testing.T) {
	h := debugHandle(t, 4)
	require.NoError(t, h.Fire(0, `["mvol",0.0]`))
	require.NoError(t, h.Fire(0, `["n+",55.0]`))

	out := h.Play(256)
	for _, v := range out {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
}

func TestMasterTempoEvent(t *testing.T) {
	h := debugHandle(t, 4)
	require.NoError(t, h.Fire(0, `["mt",150.0]`))
	assert.Equal(t, 150.0, h.Player.TempoBPM)
}

func TestResetReturnsToStart(t *testing.T) {
	h := debugHandle(t, 4)
	require.NoError(t, h.Fire(0, `["n+",55.0]`))
	h.Play(128)

	h.Reset(0)
	assert.False(t, h.HasStopped())
	assert.Empty(t, h.GetError())
}

func TestGetEventsDrainsWarnings(t *testing.T) {
	h, err := NewHandle(220, 128, 4)
	require.NoError(t, err)

	h.logWarn("test warning")
	events := h.GetEvents()
	assert.Contains(t, events, "test warning")
	assert.Equal(t, "[]", h.GetEvents())
}

func TestFireBeforeValidateLogsWarning(t *testing.T) {
	h, err := NewHandle(220, 128, 4)
	require.NoError(t, err)
	require.NoError(t, h.BindChannel(0, 0))

	// Dispatcher is nil until Validate runs; firing routes through
	// dispatchExternal's nil check and logs a warning instead of panicking.
	require.NoError(t, h.Fire(0, `["n+",55.0]`))
	assert.Contains(t, h.GetEvents(), "not validated")
}

func TestBindChannelOutOfRange(t *testing.T) {
	h, err := NewHandle(220, 128, 4)
	require.NoError(t, err)
	err = h.BindChannel(-1, 0)
	assert.Error(t, err)
	err = h.BindChannel(len(h.Player.Channels), 0)
	assert.Error(t, err)
}

func TestDecodeArgMaybeStringAcceptsNull(t *testing.T) {
	arg, err := decodeArg(event.ArgMaybeString, []byte("null"))
	require.NoError(t, err)
	assert.False(t, arg.Valid)
}

func TestDroppedNotesStartsZero(t *testing.T) {
	h := debugHandle(t, 1)
	assert.Equal(t, uint64(0), h.DroppedNotes())
}

// TestFireNoteOnDropsWhenGroupExceedsPoolSlack exercises genuine voice-pool
// exhaustion (spec.md §8 Scenario E, reconciled in DESIGN.md's Open Question
// decisions): under §4.3's literal stealing order a single-processor
// instrument can never be dropped, since any occupied slot belongs to a
// "different" group than the note being allocated and is always a valid
// steal target. The only way AllocateGroup genuinely runs out of slots is
// a voice group wider than the pool itself — here 5 processors against a
// 4-slot pool, so even an empty pool can't seat the very first note.
func TestFireNoteOnDropsWhenGroupExceedsPoolSlack(t *testing.T) {
	h, err := NewHandle(220, 128, 4)
	require.NoError(t, err)

	shared := &device.Shared{SampleRate: 220, BufferSize: 128, TempoBPM: 120}
	procs := make([]device.Processor, 5)
	for i := range procs {
		procs[i] = processor.NewDebug(i, shared, h.Player.Bufs)
	}
	require.NoError(t, h.SetInstrument(0, nil, procs))
	require.NoError(t, h.BindChannel(0, 0))
	require.NoError(t, h.Validate(nil))
	h.SetTracks(quietTracks())

	require.NoError(t, h.Fire(0, `["n+",55.0]`))

	assert.Equal(t, uint64(1), h.DroppedNotes())
	assert.Contains(t, h.GetEvents(), "voice pool exhausted")
}

// TestMasterTempoPatternEventSplitsFrameCount exercises spec.md §8 Scenario
// F: a tempo change scheduled in a pattern's master column (as opposed to
// fired externally) splits a render into frame counts computed at each
// tempo. At 44100Hz, a master-column "mt" trigger at 0.5 beat changes
// 60bpm to 120bpm; the first 0.5 beat at 60bpm is 22050 frames, and the
// pattern's remaining 1.0 beat at 120bpm is another 22050 frames. This
// also exercises Player.CtxFor: before it existed, dispatchDue passed a
// nil context and handleMasterTempo's unchecked ctx.(*dispatchCtx)
// assertion would have panicked the instant the cursor reached this
// trigger.
func TestMasterTempoPatternEventSplitsFrameCount(t *testing.T) {
	h, err := NewHandle(44100, 128, 4)
	require.NoError(t, err)
	require.NoError(t, h.Validate(nil))
	h.Player.SetTempo(60)

	instance := &position.PatternInstance{
		Length: tstamp.New(1, tstamp.BeatDivisor/2),
		Columns: []*position.Column{
			{Index: -1, Triggers: []position.Trigger{
				{At: tstamp.New(0, tstamp.BeatDivisor/2), Event: event.Event{
					Name:   "mt",
					Arg:    event.Arg{Kind: event.ArgFloat, Float: 120},
					Target: event.Global,
				}},
			}},
		},
	}
	h.SetTracks([]*position.Track{{Systems: []*position.System{{Instances: []*position.PatternInstance{instance}}}}})

	h.Play(22050)
	assert.Equal(t, 60.0, h.Player.TempoBPM, "tempo must not change until the cursor actually reaches the trigger")

	out := h.Play(22050)
	assert.Equal(t, 120.0, h.Player.TempoBPM)
	assert.Len(t, out, 22050*2)
}
