package processor

import (
	"math"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/workbuf"
)

// ChorusParams mirrors the parameter block named in
// original_source/src/lib/devices/processors/Proc_chorus.h: a delayed,
// LFO-modulated copy of the input mixed back in at a controllable volume.
// At delay=range=speed=volume=0 the effect degenerates to the identity,
// which spec.md §8 Scenario D exercises directly.
type ChorusParams struct {
	DelayMs float64
	RangeMs float64
	SpeedHz float64
	Volume  float64 // 0..1, linear mix of the delayed signal
}

// Chorus is a mixed-signal-only effect processor (it never produces
// per-voice output): it reads its input port, writes a delayed+modulated
// blend to its output port.
type Chorus struct {
	DeviceID int
	InPortL  int
	InPortR  int
	OutPortL int
	OutPortR int
	Shared   *device.Shared
	bufs     *device.PortBuffers
	Params   ChorusParams

	lineL, lineR []float64
	writePos     int
	lfoPhase     float64
}

// NewChorus constructs a chorus bound to deviceID with a delay line sized
// for rangeMs + delayMs of headroom at the given sample rate.
func NewChorus(deviceID int, shared *device.Shared, bufs *device.PortBuffers, params ChorusParams) *Chorus {
	maxDelayFrames := int((params.DelayMs+params.RangeMs)/1000.0*float64(shared.SampleRate)) + 2
	if maxDelayFrames < 2 {
		maxDelayFrames = 2
	}
	return &Chorus{
		DeviceID: deviceID,
		InPortL:  0, InPortR: 1,
		OutPortL: 0, OutPortR: 1,
		Shared: shared,
		bufs:   bufs,
		Params: params,
		lineL:  make([]float64, maxDelayFrames),
		lineR:  make([]float64, maxDelayFrames),
	}
}

func (c *Chorus) ID() int                   { return c.DeviceID }
func (c *Chorus) ProducesMixedSignal() bool { return true }
func (c *Chorus) ProducesVoiceSignal() bool { return false }
func (c *Chorus) VStateSize() int           { return 0 }
func (c *Chorus) InitVState(interface{})    {}
func (c *Chorus) RenderVoice(interface{}, *workbuf.Pool, int, int, float64) int { return 0 }

// RenderMixed implements the delay+LFO blend. With volume 0 the output
// equals the input exactly: identity, as spec.md Scenario D requires.
func (c *Chorus) RenderMixed(wbs *workbuf.Pool, frameCount int, tempoBPM float64) {
	inL := wbs.Get(c.bufs.ID(c.DeviceID, c.InPortL))
	inR := wbs.Get(c.bufs.ID(c.DeviceID, c.InPortR))
	outL := wbs.Get(c.bufs.ID(c.DeviceID, c.OutPortL))
	outR := wbs.Get(c.bufs.ID(c.DeviceID, c.OutPortR))
	outL.Resize(frameCount)
	outR.Resize(frameCount)

	n := len(c.lineL)
	rate := float64(c.Shared.SampleRate)
	baseDelayFrames := c.Params.DelayMs / 1000.0 * rate
	rangeFrames := c.Params.RangeMs / 1000.0 * rate

	for i := 0; i < frameCount; i++ {
		dry := 0.0
		dryR := 0.0
		if i < len(inL.Data) {
			dry = inL.Data[i]
		}
		if i < len(inR.Data) {
			dryR = inR.Data[i]
		}

		c.lineL[c.writePos] = dry
		c.lineR[c.writePos] = dryR

		// At Volume == 0 the wet tap still gets computed, but multiplying it
		// by zero makes the output exactly dry: identity falls out of the
		// general path rather than needing a special case (spec.md Scenario D).
		mod := 0.0
		if c.Params.SpeedHz != 0 {
			mod = math.Sin(c.lfoPhase)
		}
		delayFrames := baseDelayFrames + rangeFrames*mod
		tapPos := float64(c.writePos) - delayFrames
		wetL := c.readInterp(c.lineL, tapPos, n)
		wetR := c.readInterp(c.lineR, tapPos, n)
		outL.Data[i] = dry + c.Params.Volume*wetL
		outR.Data[i] = dryR + c.Params.Volume*wetR

		c.writePos = (c.writePos + 1) % n
		if c.Params.SpeedHz != 0 {
			c.lfoPhase += 2 * math.Pi * c.Params.SpeedHz / rate
			if c.lfoPhase > 2*math.Pi {
				c.lfoPhase -= 2 * math.Pi
			}
		}
	}
}

// readInterp linearly interpolates the delay line at a fractional
// position, wrapping into [0, n).
func (c *Chorus) readInterp(line []float64, pos float64, n int) float64 {
	for pos < 0 {
		pos += float64(n)
	}
	i0 := int(pos) % n
	i1 := (i0 + 1) % n
	frac := pos - math.Floor(pos)
	return line[i0]*(1-frac) + line[i1]*frac
}
