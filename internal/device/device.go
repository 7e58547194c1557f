// Package device models Kunquat's audio units, processors, connections and
// the level-ordered execution plans the player walks each block (spec.md
// §3, §4.4, §4.5).
package device

import (
	"fmt"

	"github.com/kagu/kunquat/internal/workbuf"
)

// MasterID is the sentinel device id for the module's master output node,
// the sink every mixed-signal connection DAG must reach (spec.md §4.4).
const MasterID = -1

// Connection is a directed edge from (SrcDevice, SrcPort) to
// (DstDevice, DstPort). The set of connections for an AU, plus the
// module-level set, forms a DAG enforced at load time (spec.md §3).
type Connection struct {
	SrcDevice, SrcPort int
	DstDevice, DstPort int
}

// Marker is the three-state traversal marker device state carries for the
// graph planner's cycle-aware DFS (spec.md §3 "Device state").
type Marker int

const (
	MarkerNew Marker = iota
	MarkerReached
	MarkerVisited
)

// Processor is the uniform DSP-node contract every processor
// implementation satisfies (spec.md §4.5). Each processor declares which
// signal kinds it produces; a processor may do either, both, or (for
// effect-only AUs) just mixed.
type Processor interface {
	// ID uniquely identifies this processor within the module.
	ID() int
	// ProducesMixedSignal reports whether RenderMixed does anything.
	ProducesMixedSignal() bool
	// ProducesVoiceSignal reports whether this processor has a per-voice
	// mode at all; VStateSize() == 0 must agree with this being false.
	ProducesVoiceSignal() bool
	// VStateSize returns the size of the per-voice scratch state this
	// processor needs; 0 means the processor has no voice mode.
	VStateSize() int
	// InitVState prepares a freshly allocated voice state at voice
	// allocation time.
	InitVState(vstate interface{})
	// RenderVoice renders frameCount frames of one voice's output,
	// reading its declared input ports from wbs and writing its output
	// ports at the given voice instance slot (so concurrently active
	// voices sharing this processor each get distinct buffers). It
	// returns keepAliveStop: the index past which the voice's output is
	// guaranteed silent for the remainder of this call.
	RenderVoice(vstate interface{}, wbs *workbuf.Pool, instance, frameCount int, tempoBPM float64) (keepAliveStop int)
	// RenderMixed renders frameCount frames on the mixed-signal graph.
	RenderMixed(wbs *workbuf.Pool, frameCount int, tempoBPM float64)
}

// PortBuffers maps a (deviceID, port, instance) triple to a stable
// integer buffer id usable with workbuf.Pool.Get. Mixed-signal devices
// always use instance 0 (one buffer per port, module-wide); the player's
// per-voice rendering uses the voice's pool slot index plus one as the
// instance, so voice buffers never alias the mixed ones and concurrently
// active voices sharing a processor type each get their own buffer.
type PortBuffers struct {
	ids  map[[3]int]int
	next int
}

// NewPortBuffers creates an empty device/port -> buffer id table.
func NewPortBuffers() *PortBuffers {
	return &PortBuffers{ids: make(map[[3]int]int)}
}

// ID returns the stable mixed-signal buffer id for (device, port),
// allocating one on first use. Equivalent to InstanceID(device, port, 0).
func (p *PortBuffers) ID(device, port int) int {
	return p.InstanceID(device, port, 0)
}

// InstanceID returns the stable buffer id for (device, port, instance),
// allocating one on first use.
func (p *PortBuffers) InstanceID(device, port, instance int) int {
	key := [3]int{device, port, instance}
	if id, ok := p.ids[key]; ok {
		return id
	}
	id := p.next
	p.next++
	p.ids[key] = id
	return id
}

// AUKind distinguishes instruments (which spawn voices) from effects
// (which operate on mixed signal only), per spec.md §3.
type AUKind int

const (
	KindInstrument AUKind = iota
	KindEffect
)

// AU is an audio-unit container: its own connection graph, a set of
// processors, and (for instruments) per-voice sub-graph metadata.
type AU struct {
	ID          int
	Kind        AUKind
	Processors  []Processor
	Connections []Connection
}

// ValidateDAG walks cons with the standard NEW/REACHED/VISITED DFS and
// returns an error if a cycle exists among the device ids referenced. It
// is the same traversal discipline the graph planners use to build
// execution plans, reused here as a pure load-time check; BuildMixedPlan
// runs it first, so a cyclic mixed-signal connection set is rejected even
// where the cycle does not reach the master (spec.md §4.2's "cycle
// detection is performed at load time" analogue for device graphs). The
// player wraps the error as a kerr Format error.
func ValidateDAG(cons []Connection) error {
	adj := make(map[int][]int)
	nodes := make(map[int]bool)
	for _, c := range cons {
		adj[c.SrcDevice] = append(adj[c.SrcDevice], c.DstDevice)
		nodes[c.SrcDevice] = true
		nodes[c.DstDevice] = true
	}
	marks := make(map[int]Marker, len(nodes))
	var visit func(n int) error
	visit = func(n int) error {
		switch marks[n] {
		case MarkerVisited:
			return nil
		case MarkerReached:
			return fmt.Errorf("cycle detected at device %d", n)
		}
		marks[n] = MarkerReached
		for _, next := range adj[n] {
			if err := visit(next); err != nil {
				return err
			}
		}
		marks[n] = MarkerVisited
		return nil
	}
	for n := range nodes {
		if marks[n] == MarkerNew {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
