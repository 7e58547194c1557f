package device

import (
	"fmt"
	"sort"

	"github.com/kagu/kunquat/internal/workbuf"
)

// Task is one device's slot in an execution plan: the processor to run,
// the level it was assigned, and the edges whose send buffers must be
// summed into this device's receive buffer before the processor runs
// (spec.md §4.4 point 3).
type Task struct {
	DeviceID int
	Level    int
	Proc     Processor
	Inputs   []Connection
}

// Plan is a precomputed, level-ordered execution schedule: tasks in the
// same level are mutually independent and may run in parallel (spec.md
// §4.4, §4.5). Levels are stored deepest-first, matching execution order.
type Plan struct {
	// LevelsDeepToShallow[0] is the deepest level (farthest from the
	// sink); the last entry is level 1 (closest to the sink). Level 0 (the
	// sink itself, e.g. master) carries no task.
	LevelsDeepToShallow [][]*Task
	ByDevice            map[int]*Task
	// SinkInputs are the connections feeding the plan's own sink (master
	// or a voice-signal output), summed into the sink's buffer by Execute
	// after every task has run.
	SinkInputs []Connection
	SinkID     int
}

// planner builds a Plan by computing, for every device reachable from a
// sink via reverse edges, the length of the longest forward path from
// that device to the sink. This both assigns level numbers (sink == 0)
// and yields a deepest-first execution order: a device can only be
// scheduled once everything whose output feeds it has already run.
type planner struct {
	successors   map[int][]Connection // by SrcDevice
	predecessors map[int][]Connection // by DstDevice
	include      func(deviceID int) (Processor, bool)
	sinkID       int

	levels map[int]int
	marks  map[int]Marker
}

func newPlanner(cons []Connection, sinkID int, include func(int) (Processor, bool)) *planner {
	p := &planner{
		successors:   make(map[int][]Connection),
		predecessors: make(map[int][]Connection),
		include:      include,
		sinkID:       sinkID,
		levels:       make(map[int]int),
		marks:        make(map[int]Marker),
	}
	for _, c := range cons {
		p.successors[c.SrcDevice] = append(p.successors[c.SrcDevice], c)
		p.predecessors[c.DstDevice] = append(p.predecessors[c.DstDevice], c)
	}
	return p
}

// reachable performs the reverse-edge DFS from the sink described in
// spec.md §4.4 point 1, returning the set of devices that can reach the
// sink via forward edges (i.e. every device on some path into the sink).
func (p *planner) reachable() map[int]bool {
	seen := map[int]bool{p.sinkID: true}
	var walk func(n int)
	walk = func(n int) {
		for _, c := range p.predecessors[n] {
			if !seen[c.SrcDevice] {
				seen[c.SrcDevice] = true
				walk(c.SrcDevice)
			}
		}
	}
	walk(p.sinkID)
	return seen
}

// level computes the longest forward path length from n to the sink,
// memoized, detecting cycles with the NEW/REACHED/VISITED discipline.
func (p *planner) level(n int) (int, error) {
	if n == p.sinkID {
		return 0, nil
	}
	if lv, ok := p.levels[n]; ok {
		return lv, nil
	}
	switch p.marks[n] {
	case MarkerReached:
		return 0, fmt.Errorf("mixed-signal graph has a cycle at device %d", n)
	case MarkerVisited:
		return p.levels[n], nil
	}
	p.marks[n] = MarkerReached
	max := -1
	for _, c := range p.successors[n] {
		if _, ok := p.include(c.DstDevice); !ok && c.DstDevice != p.sinkID {
			continue
		}
		lv, err := p.level(c.DstDevice)
		if err != nil {
			return 0, err
		}
		if lv > max {
			max = lv
		}
	}
	if max < 0 {
		max = 0
	}
	lv := max + 1
	p.levels[n] = lv
	p.marks[n] = MarkerVisited
	return lv, nil
}

// build assembles the final Plan from the computed levels and each
// device's recorded predecessor edges.
func (p *planner) build() (*Plan, error) {
	reach := p.reachable()
	plan := &Plan{ByDevice: make(map[int]*Task), SinkInputs: p.predecessors[p.sinkID], SinkID: p.sinkID}
	maxLevel := 0
	for n := range reach {
		if n == p.sinkID {
			continue
		}
		proc, ok := p.include(n)
		if !ok {
			continue
		}
		lv, err := p.level(n)
		if err != nil {
			return nil, err
		}
		task := &Task{DeviceID: n, Level: lv, Proc: proc, Inputs: p.predecessors[n]}
		plan.ByDevice[n] = task
		if lv > maxLevel {
			maxLevel = lv
		}
	}
	plan.LevelsDeepToShallow = make([][]*Task, maxLevel)
	for _, task := range plan.ByDevice {
		plan.LevelsDeepToShallow[task.Level-1] = append(plan.LevelsDeepToShallow[task.Level-1], task)
	}
	// Reverse so index 0 is the deepest level (largest level number),
	// matching spec.md §4.4's "for level = deepest to level 1" order.
	for i, j := 0, len(plan.LevelsDeepToShallow)-1; i < j; i, j = i+1, j-1 {
		plan.LevelsDeepToShallow[i], plan.LevelsDeepToShallow[j] = plan.LevelsDeepToShallow[j], plan.LevelsDeepToShallow[i]
	}
	for _, level := range plan.LevelsDeepToShallow {
		sort.Slice(level, func(i, j int) bool { return level[i].DeviceID < level[j].DeviceID })
	}
	return plan, nil
}

// BuildMixedPlan builds the mixed-signal execution plan: every device
// that has ProducesMixedSignal() true and sits on some path into
// MasterID, level-ordered (spec.md §4.4).
func BuildMixedPlan(cons []Connection, procsByID map[int]Processor) (*Plan, error) {
	if err := ValidateDAG(cons); err != nil {
		return nil, err
	}
	include := func(id int) (Processor, bool) {
		proc, ok := procsByID[id]
		if !ok || !proc.ProducesMixedSignal() {
			return nil, false
		}
		return proc, true
	}
	p := newPlanner(cons, MasterID, include)
	return p.build()
}

// VoiceSinkID is the sentinel sink for a single instrument's voice-signal
// plan: the instrument's own output port, distinct from the module-wide
// MasterID since voice plans are scoped to one AU (spec.md §4.5).
const VoiceSinkID = -2

// BuildVoicePlan builds the voice-signal execution plan for one
// instrument: every processor with ProducesVoiceSignal() true that sits
// on a path to the instrument's output, level-ordered the same way as the
// mixed-signal plan (spec.md §4.5).
func BuildVoicePlan(cons []Connection, procsByID map[int]Processor) (*Plan, error) {
	include := func(id int) (Processor, bool) {
		proc, ok := procsByID[id]
		if !ok || !proc.ProducesVoiceSignal() {
			return nil, false
		}
		return proc, true
	}
	p := newPlanner(cons, VoiceSinkID, include)
	return p.build()
}

// Execute runs plan deepest-level-first, summing each task's declared
// input edges into its receive buffers (grouped by destination port, so
// a stereo device's L/R inputs stay independent) via bufID before
// invoking RenderMixed (spec.md §4.4 "Execution per block").
func (plan *Plan) Execute(wbs *workbuf.Pool, bufID *PortBuffers, frameCount int, tempoBPM float64) {
	for _, level := range plan.LevelsDeepToShallow {
		for _, task := range level {
			sumEdgesByPort(wbs, bufID, task.DeviceID, 0, task.Inputs, frameCount)
			task.Proc.RenderMixed(wbs, frameCount, tempoBPM)
		}
	}
	plan.sumIntoSink(wbs, bufID, frameCount)
}

// sumIntoSink accumulates every connection feeding the plan's own sink
// (master, or a voice-signal output) into the sink's per-port buffers,
// since the sink itself is never a Task.
func (plan *Plan) sumIntoSink(wbs *workbuf.Pool, bufID *PortBuffers, frameCount int) {
	sumEdgesByPort(wbs, bufID, plan.SinkID, 0, plan.SinkInputs, frameCount)
}

// sumEdgesByPort clears and sums ins into dstDevice's receive buffers,
// one buffer per distinct DstPort, at the given voice instance (0 for
// mixed-signal plans). Clearing first (rather than relying on Resize,
// which only truncates/grows without zeroing a reused buffer) is
// required since every port accumulates across possibly-several edges
// and must start each block at zero.
func sumEdgesByPort(wbs *workbuf.Pool, bufID *PortBuffers, dstDevice, instance int, ins []Connection, frameCount int) {
	touched := make(map[int]bool)
	for _, in := range ins {
		recv := wbs.Get(bufID.InstanceID(dstDevice, in.DstPort, instance))
		if !touched[in.DstPort] {
			recv.Clear()
			recv.Resize(frameCount)
			touched[in.DstPort] = true
		}
		send := wbs.Get(bufID.InstanceID(in.SrcDevice, in.SrcPort, instance))
		recv.Add(send, frameCount)
	}
}

// ExecuteVoice runs a voice's instrument-internal processor chain
// deepest-level-first for one voice pool slot (instance), summing each
// task's input edges into its per-instance receive buffer before invoking
// RenderVoice (spec.md §4.5). vstates supplies the per-voice scratch state
// for each device id in the plan. It returns the keepAliveStop of the
// shallowest (output-facing) task, the value the voice pool uses to decide
// whether this voice has gone silent for the rest of the block.
func (plan *Plan) ExecuteVoice(wbs *workbuf.Pool, bufID *PortBuffers, instance, frameCount int, tempoBPM float64, vstates map[int]interface{}) int {
	finalStop := frameCount
	for _, level := range plan.LevelsDeepToShallow {
		for _, task := range level {
			sumEdgesByPort(wbs, bufID, task.DeviceID, instance, task.Inputs, frameCount)
			stop := task.Proc.RenderVoice(vstates[task.DeviceID], wbs, instance, frameCount, tempoBPM)
			finalStop = stop
		}
	}
	return finalStop
}
