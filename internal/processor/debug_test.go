package processor

import (
	"testing"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/voice"
	"github.com/kagu/kunquat/internal/workbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDebugHarness builds the minimal device.Shared/PortBuffers/workbuf.Pool
// scaffolding RenderVoice needs, standing in for the voice pool and graph
// planner a real Handle would supply (spec.md §4.5's processor contract).
func newDebugHarness(rate int) (*Debug, *workbuf.Pool, *voice.State) {
	shared := &device.Shared{SampleRate: rate, BufferSize: 128}
	bufs := device.NewPortBuffers()
	d := NewDebug(0, shared, bufs)
	wbs := workbuf.NewPool(128)
	st := &voice.State{NoteOn: true, Pitch: 55.0}
	d.InitVState(st)
	return d, wbs, st
}

// TestDebugRenderVoicePulsePattern pins spec.md §8 Scenario B's literal
// output: at pitch 55Hz and a 220Hz sample rate the pulse edge recurs every
// 4 frames (ratio 0.25/sample), value +1.0 on the edge and +0.5 between,
// for the 10 pulses Generator_debug_mix counts before deactivating. The
// 10th wrap lands at frame 39, so frames 40+ of this single 128-frame call
// are silent.
func TestDebugRenderVoicePulsePattern(t *testing.T) {
	d, wbs, st := newDebugHarness(220)

	stop := d.RenderVoice(st, wbs, 0, 128, 120)
	assert.Equal(t, 40, stop)

	bufL := wbs.Get(0)
	for i := 0; i < 40; i++ {
		want := 0.5
		if i%4 == 0 {
			want = 1.0
		}
		assert.Equalf(t, want, bufL.Data[i], "frame %d", i)
	}
	for i := 40; i < 128; i++ {
		assert.Equalf(t, 0.0, bufL.Data[i], "frame %d", i)
	}
	assert.True(t, bufL.IsFinal())
	assert.Equal(t, 40, bufL.ConstStart())
}

// TestDebugRenderVoiceNoteOffDecay pins spec.md §8 Scenario C's literal
// output: a note-off delivered after 20 frames of sustain flips the sign
// and starts the decay accumulator (NoffPosRem), which advances by the
// same 0.25 per frame as the pulse accumulator, so the voice deactivates
// after exactly 8 more frames (NoffPosRem reaching 2 at local frame 7)
// instead of running the full ten pulses. The 8 decay frames are the sign-inverted mirror of the
// first 8 sustain frames, and everything from frame 28 onward is silent.
func TestDebugRenderVoiceNoteOffDecay(t *testing.T) {
	d, wbs, st := newDebugHarness(220)

	stop := d.RenderVoice(st, wbs, 0, 20, 120)
	require.Equal(t, 20, stop, "no pulse/decay deadline reached within the sustain portion")

	st.NoteOn = false
	stop = d.RenderVoice(st, wbs, 0, 108, 120)
	assert.Equal(t, 8, stop)

	bufL := wbs.Get(0)
	want := []float64{-1.0, -0.5, -0.5, -0.5, -1.0, -0.5, -0.5, -0.5}
	for i, w := range want {
		assert.Equalf(t, w, bufL.Data[i], "frame %d", i)
	}
	for i := 8; i < 108; i++ {
		assert.Equalf(t, 0.0, bufL.Data[i], "frame %d", i)
	}
	assert.True(t, bufL.IsFinal())
	assert.Equal(t, 8, bufL.ConstStart())
}
