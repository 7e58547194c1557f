// Package player implements the block-driven top-level render loop
// (spec.md §4.7): advancing the cursor, dispatching due events, running
// the voice-signal and mixed-signal plans, and writing interleaved
// stereo output through a persistent DC blocker and master volume ramp.
package player

import (
	"github.com/kagu/kunquat/internal/channel"
	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/event"
	"github.com/kagu/kunquat/internal/kerr"
	"github.com/kagu/kunquat/internal/position"
	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/kagu/kunquat/internal/voice"
	"github.com/kagu/kunquat/internal/workbuf"
)

// Instrument is the player's view of one instrument AU: its voice-
// producing processors (by id) and the level-ordered voice-signal plan
// built from them (spec.md §4.5). One instrument AU is assumed to wrap
// exactly one voice-producing processor chain whose own device id also
// names the AU's mixed-signal output port, which keeps the per-block
// voice-to-mixed hand-off a single buffer add instead of a second
// indirection table; AUs needing several independent per-voice chains
// are representable by the same device.Plan machinery but are out of
// this player's scope.
type Instrument struct {
	AUID      int
	Procs     []device.Processor
	VoicePlan *device.Plan
}

// Master carries module-wide state: the mixed-signal plan across every
// AU's output, the master volume ramp, and the persistent DC blocker
// (spec.md §9 "DC blocker persistence ... must persist across render
// calls").
type Master struct {
	MixedPlan  *device.Plan
	Volume     *channel.Slider // targets [0,1], linear ramp
	dcPrevIn   [2]float64
	dcPrevOut  [2]float64
}

// DCBlockR is the DC blocker's feedback coefficient; close to 1 keeps
// the cutoff low without audibly coloring the signal.
const DCBlockR = 0.995

func (m *Master) dcBlock(ch int, x float64) float64 {
	y := x - m.dcPrevIn[ch] + DCBlockR*m.dcPrevOut[ch]
	m.dcPrevIn[ch] = x
	m.dcPrevOut[ch] = y
	return y
}

// Status is the player's coarse run state (spec.md §4.7 "transitions to
// STOPPED").
type Status int

const (
	Playing Status = iota
	Stopped
)

// Player is the top-level render loop owner: channels, the voice pool,
// every instrument's voice plan, the module mixed plan, and the shared
// work-buffer pool and port-id table the plans address (spec.md §2
// point 5, §4.7).
type Player struct {
	SampleRate int
	TempoBPM   float64

	Channels    []*channel.Channel
	Voices      *voice.Pool
	Instruments map[int]*Instrument // by AU id
	Master      *Master

	WBS  *workbuf.Pool
	Bufs *device.PortBuffers

	Cursor     *position.Cursor
	Dispatcher *event.Dispatcher
	// CtxFor resolves a dispatch handler's context for a pattern-scheduled
	// trigger, the same context dispatchExternal builds for a fired event
	// (spec.md §4.2 "A voice allocated during event dispatch is visible to
	// the same block's voice-signal execution" applies equally to either
	// origin). Set once by the handle at Validate time.
	CtxFor func(event.Target) interface{}

	Status Status

	// Events accumulates observable dispatch output for get_events
	// (spec.md §7 "logs them into the event buffer").
	Events []string

	nextGroupID uint64
}

// New constructs a player; sampleRate/tempo seed every channel's and the
// master volume slider's rate/tempo state.
func New(sampleRate int, tempoBPM float64, channelCount, voiceCapacity int) *Player {
	p := &Player{
		SampleRate:  sampleRate,
		TempoBPM:    tempoBPM,
		Voices:      voice.NewPool(voiceCapacity),
		Instruments: make(map[int]*Instrument),
		WBS:         workbuf.NewPool(0),
		Bufs:        device.NewPortBuffers(),
		Master:      &Master{Volume: channel.NewSlider(channel.SlideLinear)},
	}
	p.Master.Volume.SetSampleRate(sampleRate)
	p.Master.Volume.SetTempo(tempoBPM)
	p.Master.Volume.Start(1, 1)
	for i := 0; i < channelCount; i++ {
		ch := channel.New(i)
		ch.SetSampleRate(sampleRate)
		ch.SetTempo(tempoBPM)
		p.Channels = append(p.Channels, ch)
	}
	return p
}

// SetInstrument registers an instrument AU's voice-producing processors
// and builds its voice-signal plan (spec.md §4.5 "computed once at load").
func (p *Player) SetInstrument(auID int, cons []device.Connection, procs []device.Processor) error {
	byID := make(map[int]device.Processor, len(procs))
	for _, proc := range procs {
		byID[proc.ID()] = proc
	}
	plan, err := device.BuildVoicePlan(cons, byID)
	if err != nil {
		return kerr.New(kerr.Format, "instrument %d voice plan: %v", auID, err)
	}
	p.Instruments[auID] = &Instrument{AUID: auID, Procs: procs, VoicePlan: plan}
	return nil
}

// SetMixedGraph builds the module-wide mixed-signal plan from every
// device's connections to device.MasterID (spec.md §4.4).
func (p *Player) SetMixedGraph(cons []device.Connection, procsByID map[int]device.Processor) error {
	plan, err := device.BuildMixedPlan(cons, procsByID)
	if err != nil {
		return kerr.New(kerr.Format, "mixed graph: %v", err)
	}
	p.Master.MixedPlan = plan
	return nil
}

// SetTracks installs the composition's track list and resets the cursor
// to its start (spec.md §4.1).
func (p *Player) SetTracks(tracks []*position.Track) {
	p.Cursor = position.NewCursor(tracks)
	p.Status = Playing
}

// logWarn records a non-fatal diagnostic the host observes via
// get_events, matching spec.md §7's "logs them into the event buffer"
// propagation rule.
func (p *Player) logWarn(reason string) {
	p.Events = append(p.Events, "!warn "+reason)
}

// FireNoteOn allocates a voice group for channel ch on the given
// instrument AU, demoting the channel's previous foreground group first
// (spec.md §4.3 "Foreground/background transition"). A pool-exhaustion
// error is logged as a dropped-note warning, not propagated.
func (p *Player) FireNoteOn(ch int, auID int, pitch float64) {
	inst, ok := p.Instruments[auID]
	if !ok {
		p.logWarn("note-on targets unknown instrument")
		return
	}
	c := p.Channels[ch]
	if c.ForegroundGroup != nil {
		p.Voices.DemoteForeground(c.ForegroundGroup.ID)
	}
	group, err := p.Voices.AllocateGroup(ch, auID, voice.Foreground, inst.Procs, func(uint64) uint64 {
		return c.Rand.Next()
	})
	if err != nil {
		p.logWarn("voice pool exhausted, note dropped")
		return
	}
	streams := c.CarriedStreams()
	for _, v := range group.Voices {
		v.State.NoteOn = true
		v.State.Pitch = pitch
		v.State.ChannelExpr = c.PendingExpr
		v.State.Streams = streams
	}
	c.ForegroundGroup = group
}

// FireNoteOff signals the channel's current foreground voices to begin
// their release phase; processors observe this via voice.State.NoteOn.
func (p *Player) FireNoteOff(ch int) {
	c := p.Channels[ch]
	if c.ForegroundGroup == nil {
		return
	}
	for _, v := range c.ForegroundGroup.Voices {
		v.State.NoteOn = false
	}
}

// Render fills out with frameCount interleaved stereo frames
// (len(out) == 2*frameCount), following spec.md §4.7's pseudocode. Once
// Stopped, it writes silence without touching the cursor.
func (p *Player) Render(frameCount int, out []float64) {
	if p.Status == Stopped || p.Cursor == nil {
		zero(out, frameCount)
		return
	}

	rendered := 0
	for rendered < frameCount {
		toRender := p.framesToNextEvent(frameCount - rendered)
		if toRender == 0 {
			p.dispatchDue()
			if p.cursorExhausted() {
				p.Status = Stopped
				zero(out[rendered*2:], frameCount-rendered)
				return
			}
			continue
		}

		p.WBS.ResizeAll(toRender)
		p.Voices.FreeInactive()

		p.renderVoices(toRender)
		if p.Master.MixedPlan != nil {
			p.Master.MixedPlan.Execute(p.WBS, p.Bufs, toRender, p.TempoBPM)
		}
		p.writeMaster(out[rendered*2:], toRender)

		p.advance(toRender)
		rendered += toRender
	}
}

func zero(out []float64, frameCount int) {
	for i := 0; i < frameCount*2 && i < len(out); i++ {
		out[i] = 0
	}
}

// framesToNextEvent returns how many frames may be rendered before the
// cursor's next boundary, capped at cap.
func (p *Player) framesToNextEvent(cap int) int {
	boundary, ok := p.Cursor.NextBoundary()
	if !ok {
		return cap
	}
	pos := p.Cursor.Position()
	remaining := tstamp.Sub(boundary, pos.PatternPos)
	frames := int(tstamp.ToFrames(remaining, p.TempoBPM, int64(p.SampleRate)))
	if frames < 0 {
		frames = 0
	}
	if frames > cap {
		frames = cap
	}
	return frames
}

// dispatchDue fires every trigger at the cursor's current boundary
// (spec.md §4.1 tie-break order is already enforced by
// Cursor.DueTriggers).
func (p *Player) dispatchDue() {
	if p.Dispatcher == nil {
		return
	}
	queue := p.Cursor.DueTriggers()
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]
		produced, err := p.Dispatcher.Dispatch(ev, p.CtxFor)
		if err != nil {
			p.logWarn(err.Error())
			continue
		}
		// Binds may chain: a produced event is itself re-dispatched,
		// appended after the current batch so same-instant ordering is
		// preserved (spec.md §4.2 point 2 "Binds may chain").
		queue = append(queue, produced...)
	}
}

func (p *Player) cursorExhausted() bool {
	if p.Cursor.Advance() {
		return false
	}
	inactive, background, foreground := p.Voices.CountByPriority()
	return inactive == p.Voices.Capacity() && background == 0 && foreground == 0
}

// renderVoices walks every active voice group, executes its
// instrument's voice plan per voice, sums the result into the
// instrument's mixed-graph input buffer, and deactivates voices whose
// output has gone silent for the rest of the block (spec.md §4.5).
func (p *Player) renderVoices(frameCount int) {
	clearedAU := make(map[int]bool)

	p.Voices.StartIteration()
	for group := p.Voices.GetNextGroup(); group != nil; group = p.Voices.GetNextGroup() {
		for _, v := range group.Voices {
			if v.Deactivated {
				continue
			}
			inst, ok := p.Instruments[v.AUID]
			if !ok || inst.VoicePlan == nil {
				continue
			}
			if !clearedAU[v.AUID] {
				p.WBS.Get(p.Bufs.ID(v.AUID, 0)).Clear()
				p.WBS.Get(p.Bufs.ID(v.AUID, 1)).Clear()
				p.WBS.Get(p.Bufs.ID(v.AUID, 0)).Resize(frameCount)
				p.WBS.Get(p.Bufs.ID(v.AUID, 1)).Resize(frameCount)
				clearedAU[v.AUID] = true
			}

			// Instance 0 is the mixed-signal buffer, so voice buffers use
			// the slot index plus one.
			instance := v.SlotIndex + 1
			var stop int
			if _, planned := inst.VoicePlan.ByDevice[v.Proc.ID()]; planned {
				vstates := map[int]interface{}{v.Proc.ID(): v.State}
				stop = inst.VoicePlan.ExecuteVoice(p.WBS, p.Bufs, instance, frameCount, p.TempoBPM, vstates)
			} else {
				// A processor with no connections inside its AU is itself
				// the voice's output.
				stop = v.Proc.RenderVoice(v.State, p.WBS, instance, frameCount, p.TempoBPM)
			}

			mixedL := p.WBS.Get(p.Bufs.ID(v.AUID, 0))
			mixedR := p.WBS.Get(p.Bufs.ID(v.AUID, 1))
			voiceL := p.WBS.Get(p.Bufs.InstanceID(v.AUID, 0, instance))
			voiceR := p.WBS.Get(p.Bufs.InstanceID(v.AUID, 1, instance))
			mixedL.Add(voiceL, frameCount)
			mixedR.Add(voiceR, frameCount)

			if stop < frameCount {
				v.Deactivated = true
			}
		}
	}
}

// writeMaster applies the master volume ramp and DC blocker to the
// summed mixed output (device.MasterID's receive buffer, already summed
// by Plan.Execute) and interleaves it into out (spec.md §4.7's "apply
// master volume ramp, DC blocker, interleave to output").
func (p *Player) writeMaster(out []float64, frameCount int) {
	l := p.WBS.Get(p.Bufs.ID(device.MasterID, 0))
	r := p.WBS.Get(p.Bufs.ID(device.MasterID, 1))
	for i := 0; i < frameCount; i++ {
		vol := p.Master.Volume.Step()
		sl, sr := 0.0, 0.0
		if i < len(l.Data) {
			sl = l.Data[i] * vol
		}
		if i < len(r.Data) {
			sr = r.Data[i] * vol
		}
		sl = p.Master.dcBlock(0, sl)
		sr = p.Master.dcBlock(1, sr)
		out[i*2] = sl
		out[i*2+1] = sr
	}
}

// advance moves the cursor's local position forward by frameCount
// converted to Tstamp and steps every channel's sliders and LFOs once per
// rendered frame. Tempo changes reach the channels and the master ramp
// through SetTempo, not here.
func (p *Player) advance(frameCount int) {
	pos := p.Cursor.Position()
	delta := tstamp.FromFrames(int64(frameCount), p.TempoBPM, int64(p.SampleRate))
	pos.PatternPos = tstamp.Add(pos.PatternPos, delta)
	p.Cursor.Goto(pos)

	for i := 0; i < frameCount; i++ {
		for _, ch := range p.Channels {
			ch.Step()
		}
	}
}

// SetTempo changes the module tempo, rescaling every channel slider/LFO
// and the master volume ramp in flight (spec.md §4.6 "On tempo change,
// all sliders rescale their remaining duration").
func (p *Player) SetTempo(bpm float64) {
	p.TempoBPM = bpm
	p.Master.Volume.SetTempo(bpm)
	for _, ch := range p.Channels {
		ch.SetTempo(bpm)
	}
}

// Reset returns the player to its pre-playback state: every voice
// deactivated, channels reset, cursor and status cleared (spec.md §6
// "reset(handle, track_num)").
func (p *Player) Reset(tracks []*position.Track) {
	p.Voices.StartIteration()
	for g := p.Voices.GetNextGroup(); g != nil; g = p.Voices.GetNextGroup() {
		p.Voices.CutGroup(g.ID)
	}
	p.Voices.FreeInactive()
	for _, ch := range p.Channels {
		ch.Reset()
	}
	p.Events = nil
	p.SetTracks(tracks)
}
