// Package processor implements concrete DSP nodes satisfying the uniform
// device.Processor contract (spec.md §4.5). Individual DSP algorithms are
// out of this repository's core scope (spec.md §1); Debug and Chorus are
// carried in because spec.md's end-to-end scenarios (§8) pin their exact
// behavior.
package processor

import (
	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/voice"
	"github.com/kagu/kunquat/internal/workbuf"
)

// Debug is a direct port of original_source's Generator_debug.c: it
// emits ten pitch-scaled pulses (+1.0 at the pulse edge, +0.5 between
// edges) and deactivates; on note-off the sign inverts and a decay phase
// accumulator starts advancing at the same per-frame rate as the pulse
// phase, deactivating the voice once it reaches 2 (two pulse periods).
// Scenario B/C of spec.md §8 require this exact behavior.
type Debug struct {
	DeviceID   int
	OutPortL   int
	OutPortR   int
	Shared     *device.Shared
	bufs       *device.PortBuffers
}

// NewDebug constructs a debug processor bound to deviceID, writing stereo
// output to OutPortL/OutPortR (0 and 1 by convention).
func NewDebug(deviceID int, shared *device.Shared, bufs *device.PortBuffers) *Debug {
	return &Debug{DeviceID: deviceID, OutPortL: 0, OutPortR: 1, Shared: shared, bufs: bufs}
}

func (d *Debug) ID() int                  { return d.DeviceID }
func (d *Debug) ProducesMixedSignal() bool { return false }
func (d *Debug) ProducesVoiceSignal() bool { return true }
func (d *Debug) VStateSize() int          { return 1 }

func (d *Debug) InitVState(vs interface{}) {
	st := vs.(*voice.State)
	st.RelPos = 0
	st.RelPosRem = 0
	st.NoffPosRem = 0
	st.Pos = 0
}

// RenderVoice matches Generator_debug_mix's per-sample loop exactly:
// pitch is the voice's note frequency in Hz, freq is the processor's
// sample rate.
func (d *Debug) RenderVoice(vs interface{}, wbs *workbuf.Pool, instance, frameCount int, tempoBPM float64) int {
	st := vs.(*voice.State)
	bufL := wbs.Get(d.bufs.InstanceID(d.DeviceID, d.OutPortL, instance))
	bufR := wbs.Get(d.bufs.InstanceID(d.DeviceID, d.OutPortR, instance))
	bufL.Resize(frameCount)
	bufR.Resize(frameCount)

	freq := float64(d.Shared.SampleRate)
	pitch := st.Pitch
	if pitch <= 0 {
		pitch = 55.0
	}

	stop := frameCount
	for i := 0; i < frameCount; i++ {
		var val float64
		if st.RelPos == 0 {
			val = 1.0
			st.RelPos = 1
		} else {
			val = 0.5
		}
		if !st.NoteOn {
			val = -val
		}
		bufL.Data[i] = val
		bufR.Data[i] = val

		st.RelPosRem += pitch / freq
		if !st.NoteOn {
			st.NoffPosRem += pitch / freq
			if st.NoffPosRem >= 2 {
				stop = i + 1
				zeroTail(bufL, bufR, stop)
				return stop
			}
		}
		if st.RelPosRem >= 1 {
			st.Pos++
			if st.Pos >= 10 {
				stop = i + 1
				zeroTail(bufL, bufR, stop)
				return stop
			}
			st.RelPos = 0
			st.RelPosRem -= float64(int(st.RelPosRem))
		}
	}
	return stop
}

// zeroTail silences bufL/bufR from stop onward and records the const
// region so downstream mixing both reads correct zeros and can rely on
// the optimization hint (spec.md §3 "Work buffer").
func zeroTail(bufL, bufR *workbuf.Buffer, stop int) {
	for i := stop; i < len(bufL.Data); i++ {
		bufL.Data[i] = 0
	}
	for i := stop; i < len(bufR.Data); i++ {
		bufR.Data[i] = 0
	}
	bufL.MarkConst(stop, true)
	bufR.MarkConst(stop, true)
}

func (d *Debug) RenderMixed(wbs *workbuf.Pool, frameCount int, tempoBPM float64) {}
