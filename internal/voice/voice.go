// Package voice implements the fixed-capacity voice pool with
// priority-based stealing and group lifetime management (spec.md §3,
// §4.3).
package voice

import (
	"sort"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/kerr"
)

// Priority is a voice slot's current standing in the stealing order.
type Priority int

const (
	Inactive Priority = iota
	Background
	Foreground
)

// State carries the per-voice scratch fields that persist across a
// voice's lifetime, mirroring Voice_state.c's rel_pos/noff_pos phase
// tracking and the once-only expression filter check (spec.md §4.5,
// §4.6, SPEC_FULL.md).
type State struct {
	RelPos     int
	RelPosRem  float64
	NoffPosRem float64
	NoteOn     bool
	Pos        int
	// Pitch is the voice's note frequency in Hz, set from the triggering
	// note-on event (spec.md §3 "Channel" carried controls; Scenario B of
	// §8 uses 55Hz-equivalent reference pitch).
	Pitch float64

	ExprFiltersApplied bool
	ChannelExpr        string
	NoteExpr           string
	Proc               interface{} // processor-private vstate payload

	// Streams carries the channel's carried control-variable stream
	// values inherited at allocation (spec.md §4.6).
	Streams map[string]float64
}

// Voice is a reusable pool slot (spec.md §3 "Voice").
type Voice struct {
	SlotIndex  int
	Generation uint64
	GroupID    uint64
	Channel    int // -1 for externally fired
	AUID       int // instrument AU this voice belongs to
	Priority   Priority
	Proc       device.Processor
	State      *State
	RandSeed   uint64
	Deactivated bool
}

// Group is every voice sharing one group id: one note spawns one voice
// per voice-producing processor in the target instrument, all sharing a
// group id (spec.md §3 "Voice group").
type Group struct {
	ID     uint64
	Voices []*Voice
}

// Pool is the fixed-capacity array of voice slots spec.md §4.3 describes.
type Pool struct {
	slots       []Voice
	nextGroupID uint64
	groupOrder  []uint64 // active group ids, ascending, iteration order
	groups      map[uint64]*Group

	iterPos int

	// Stats exposes observable counters the handle surfaces via
	// get_events (spec.md §7 point 4: dropped notes are "recorded as an
	// observable statistic").
	Stats Stats
}

// Stats accumulates pool-level statistics for diagnostics.
type Stats struct {
	DroppedNotes uint64
}

// NewPool allocates a pool of the given slot capacity.
func NewPool(capacity int) *Pool {
	p := &Pool{
		slots:  make([]Voice, capacity),
		groups: make(map[uint64]*Group),
	}
	for i := range p.slots {
		p.slots[i].SlotIndex = i
		p.slots[i].Priority = Inactive
	}
	return p
}

// Capacity returns the pool's fixed slot count.
func (p *Pool) Capacity() int { return len(p.slots) }

// CountByPriority returns the number of slots at each priority, used to
// check spec.md §8's invariant that the three counts always sum to
// capacity at quiescent points.
func (p *Pool) CountByPriority() (inactive, background, foreground int) {
	for i := range p.slots {
		switch p.slots[i].Priority {
		case Inactive:
			inactive++
		case Background:
			background++
		case Foreground:
			foreground++
		}
	}
	return
}

// noExcludeGroup is the sentinel passed to candidateSlots when no group
// should be excluded from the FOREGROUND steal candidates. Group ids are
// assigned sequentially starting at 0 (see nextGroupID), so 0 cannot be
// used as "no group": excluding it would wrongly protect the very first
// group ever allocated from stealing for the rest of the pool's life.
const noExcludeGroup = ^uint64(0)

// candidateSlots returns indices of slots usable for a new allocation at
// the given priority, in the preference order spec.md §4.3 point 1
// mandates: INACTIVE first, then BACKGROUND (lowest generation first),
// then FOREGROUND belonging to a different group (lowest generation
// first, deterministic tie-break per spec.md §9's open question:
// ties broken by ascending generation, then ascending group id).
func (p *Pool) candidateSlots(requestPriority Priority, excludeGroup uint64) []int {
	var inactive, background, foreground []int
	for i := range p.slots {
		s := &p.slots[i]
		if s.Priority > requestPriority {
			continue
		}
		switch s.Priority {
		case Inactive:
			inactive = append(inactive, i)
		case Background:
			background = append(background, i)
		case Foreground:
			if s.GroupID != excludeGroup {
				foreground = append(foreground, i)
			}
		}
	}
	sortByGenThenGroup := func(idxs []int) {
		sort.Slice(idxs, func(a, b int) bool {
			sa, sb := &p.slots[idxs[a]], &p.slots[idxs[b]]
			if sa.Generation != sb.Generation {
				return sa.Generation < sb.Generation
			}
			return sa.GroupID < sb.GroupID
		})
	}
	sortByGenThenGroup(background)
	sortByGenThenGroup(foreground)
	out := make([]int, 0, len(inactive)+len(background)+len(foreground))
	out = append(out, inactive...)
	out = append(out, background...)
	out = append(out, foreground...)
	return out
}

// AllocateGroup reserves one voice slot per processor in procs, all
// sharing a freshly minted group id, per spec.md §4.3. If fewer than
// len(procs) usable slots exist, the allocation fails atomically and no
// slot is touched (point 2); the caller should treat this as a
// kerr.Resource error and drop the note.
func (p *Pool) AllocateGroup(channel, auID int, requestPriority Priority, procs []device.Processor, seed func(groupID uint64) uint64) (*Group, error) {
	if len(procs) == 0 {
		return &Group{}, nil
	}
	// AllocateGroup always mints a fresh group id below, so there is no
	// existing group to exclude from the FOREGROUND steal candidates yet.
	candidates := p.candidateSlots(requestPriority, noExcludeGroup)
	if len(candidates) < len(procs) {
		p.Stats.DroppedNotes++
		return nil, kerr.New(kerr.Resource, "voice pool exhausted: need %d slots, have %d", len(procs), len(candidates))
	}

	groupID := p.nextGroupID
	p.nextGroupID++

	chosen := candidates[:len(procs)]
	g := &Group{ID: groupID, Voices: make([]*Voice, 0, len(procs))}
	for i, slotIdx := range chosen {
		s := &p.slots[slotIdx]
		// Demote any foreground group whose last member we just stole so
		// the stolen group's other voices don't linger mis-tagged.
		if s.Priority == Foreground {
			p.demoteGroup(s.GroupID)
		}
		s.Generation++
		s.GroupID = groupID
		s.Channel = channel
		s.AUID = auID
		s.Priority = requestPriority
		s.Proc = procs[i]
		s.RandSeed = seed(groupID)
		s.State = &State{NoteOn: true}
		s.Deactivated = false
		if s.Proc.VStateSize() > 0 {
			s.Proc.InitVState(s.State)
		}
		g.Voices = append(g.Voices, s)
	}
	p.groups[groupID] = g
	p.groupOrder = append(p.groupOrder, groupID)
	sort.Slice(p.groupOrder, func(a, b int) bool { return p.groupOrder[a] < p.groupOrder[b] })
	return g, nil
}

// demoteGroup lowers every voice in a group to Background, used both when
// a channel retires its foreground note (spec.md §4.3 "Foreground/
// background transition") and when a foreground slot is stolen out from
// under its group.
func (p *Pool) demoteGroup(groupID uint64) {
	g, ok := p.groups[groupID]
	if !ok {
		return
	}
	for _, v := range g.Voices {
		if v.Priority == Foreground {
			v.Priority = Background
		}
	}
}

// DemoteForeground demotes the named group to BACKGROUND; a channel calls
// this on its previous foreground group the moment it starts a new note
// on the same instrument (spec.md §4.3).
func (p *Pool) DemoteForeground(groupID uint64) { p.demoteGroup(groupID) }

// CutGroup marks every voice in a group inactive immediately (an explicit
// note cut, spec.md §5 "Cancellation").
func (p *Pool) CutGroup(groupID uint64) {
	g, ok := p.groups[groupID]
	if !ok {
		return
	}
	for _, v := range g.Voices {
		v.Deactivated = true
	}
}

// StartIteration resets the pool's group walk to the first active group
// in ascending group-id order (spec.md §4.3 "Iteration").
func (p *Pool) StartIteration() { p.iterPos = 0 }

// GetNextGroup returns the next active group in the walk, or nil when
// exhausted.
func (p *Pool) GetNextGroup() *Group {
	for p.iterPos < len(p.groupOrder) {
		id := p.groupOrder[p.iterPos]
		p.iterPos++
		if g, ok := p.groups[id]; ok {
			return g
		}
	}
	return nil
}

// FreeInactive releases every slot whose voice has been deactivated
// (signalled end, stolen, or cut) back to INACTIVE, and drops any group
// left with no live voices. Called once at block end (spec.md §4.3,
// §4.7).
func (p *Pool) FreeInactive() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.Priority != Inactive && s.Deactivated {
			s.Priority = Inactive
			s.Proc = nil
			s.State = nil
		}
	}
	liveOrder := p.groupOrder[:0]
	for _, id := range p.groupOrder {
		g := p.groups[id]
		live := g.Voices[:0]
		for _, v := range g.Voices {
			if !v.Deactivated {
				live = append(live, v)
			}
		}
		g.Voices = live
		if len(g.Voices) == 0 {
			delete(p.groups, id)
			continue
		}
		liveOrder = append(liveOrder, id)
	}
	p.groupOrder = liveOrder
}
