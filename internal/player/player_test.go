package player

import (
	"testing"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/position"
	"github.com/kagu/kunquat/internal/processor"
	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longPatternLength() tstamp.Tstamp { return tstamp.New(1000, 0) }

func TestRenderSilenceOnEmptyModule(t *testing.T) {
	p := New(220, 120, 1, 4)
	p.SetTracks([]*position.Track{{Systems: []*position.System{{Instances: []*position.PatternInstance{
		{Length: longPatternLength(), Columns: []*position.Column{{Index: -1}, {Index: 0}}},
	}}}}})

	out := make([]float64, 256)
	p.Render(128, out)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestRenderDebugNotePulses(t *testing.T) {
	p := New(220, 120, 1, 4)
	shared := &device.Shared{SampleRate: 220, BufferSize: 128, TempoBPM: 120}
	debug := processor.NewDebug(0, shared, p.Bufs)
	require.NoError(t, p.SetInstrument(0, nil, []device.Processor{debug}))
	require.NoError(t, p.SetMixedGraph(
		[]device.Connection{{SrcDevice: 0, SrcPort: 0, DstDevice: device.MasterID, DstPort: 0}, {SrcDevice: 0, SrcPort: 1, DstDevice: device.MasterID, DstPort: 1}},
		map[int]device.Processor{},
	))
	p.SetTracks([]*position.Track{{Systems: []*position.System{{Instances: []*position.PatternInstance{
		{Length: longPatternLength(), Columns: []*position.Column{{Index: -1}, {Index: 0}}},
	}}}}})

	p.FireNoteOn(0, 0, 55.0)

	out := make([]float64, 256)
	p.Render(128, out)

	// Frame 0 should be the first pulse edge (+1.0) since the debug
	// processor's RelPos starts at 0.
	assert.InDelta(t, 1.0, out[0], 1e-9)
	assert.InDelta(t, 1.0, out[1], 1e-9)
}
