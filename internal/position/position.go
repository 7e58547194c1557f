// Package position implements the musical-time cursor: a walk over
// tracks, systems and pattern instances that yields the next event
// boundary across all columns (spec.md §4.1), grounded on the teacher's
// PlaybackRow/PlaybackChain/PlaybackPhrase cursor fields in
// internal/model/model.go and on original_source's Tstamp-driven pattern
// walk.
package position

import (
	"sort"

	"github.com/kagu/kunquat/internal/event"
	"github.com/kagu/kunquat/internal/tstamp"
)

// Pos is a playback position: which track, which system within the
// track, which pattern instance, and the time within that pattern
// (spec.md §3 "Position").
type Pos struct {
	Track           int
	System          int
	PatternInstance int
	PatternPos      tstamp.Tstamp
}

// Trigger is one scheduled (position, event) pair stored in a column.
type Trigger struct {
	At    tstamp.Tstamp
	Event event.Event
}

// Column is one channel's (or the master's) lazy trigger sequence within
// a single pattern instance, stored in ascending position order
// (spec.md §4.1 "lazy sequence of (position, trigger) pairs").
type Column struct {
	// Index -1 is the master column; 0..N-1 are channel columns, matching
	// spec.md §4.1's tie-break order (master first, then channel 0..N-1).
	Index     int
	Triggers  []Trigger
	cursorIdx int
}

// reset rewinds the column's read cursor to its first trigger.
func (c *Column) reset() { c.cursorIdx = 0 }

// peek returns the column's next undelivered trigger, if any.
func (c *Column) peek() (Trigger, bool) {
	if c.cursorIdx >= len(c.Triggers) {
		return Trigger{}, false
	}
	return c.Triggers[c.cursorIdx], true
}

// advance consumes the column's next trigger.
func (c *Column) advance() { c.cursorIdx++ }

// PatternInstance is one placed occurrence of a pattern: a fixed set of
// columns (master plus one per channel) and the pattern's length, past
// which the cursor moves to the next system.
type PatternInstance struct {
	Length  tstamp.Tstamp
	Columns []*Column
}

// System is an ordered list of pattern instances played back to back.
type System struct {
	Instances []*PatternInstance
}

// Track is an ordered list of systems.
type Track struct {
	Systems []*System
}

// Cursor walks Tracks in order, a track's Systems in order, and a
// system's pattern instances in order, simultaneously iterating every
// column of the current instance (spec.md §4.1 "cursor").
type Cursor struct {
	Tracks []*Track

	trackIdx  int
	systemIdx int
	instIdx   int
	localPos  tstamp.Tstamp
}

// NewCursor creates a cursor positioned at the very start of tracks.
func NewCursor(tracks []*Track) *Cursor {
	c := &Cursor{Tracks: tracks}
	c.resetColumns()
	return c
}

func (c *Cursor) current() *PatternInstance {
	if c.trackIdx >= len(c.Tracks) {
		return nil
	}
	t := c.Tracks[c.trackIdx]
	if c.systemIdx >= len(t.Systems) {
		return nil
	}
	s := t.Systems[c.systemIdx]
	if c.instIdx >= len(s.Instances) {
		return nil
	}
	return s.Instances[c.instIdx]
}

func (c *Cursor) resetColumns() {
	inst := c.current()
	if inst == nil {
		return
	}
	for _, col := range inst.Columns {
		col.reset()
	}
}

// Position returns the cursor's current (track, system, pattern
// instance, pattern_pos) tuple.
func (c *Cursor) Position() Pos {
	return Pos{Track: c.trackIdx, System: c.systemIdx, PatternInstance: c.instIdx, PatternPos: c.localPos}
}

// Done reports whether the cursor has walked past the last track.
func (c *Cursor) Done() bool { return c.trackIdx >= len(c.Tracks) }

// NextBoundary returns the minimum next-event time across all columns of
// the current pattern instance, or the instance's own length if no
// column has a pending trigger before it ends (spec.md §4.1 "the cursor
// reports the minimum next-event time across all columns; this defines
// the next render-boundary"). ok is false once the cursor is Done.
func (c *Cursor) NextBoundary() (tstamp.Tstamp, bool) {
	inst := c.current()
	if inst == nil {
		return tstamp.Tstamp{}, false
	}
	boundary := inst.Length
	for _, col := range inst.Columns {
		if trig, ok := col.peek(); ok && tstamp.Less(trig.At, boundary) {
			boundary = trig.At
		}
	}
	return boundary, true
}

// DueTriggers returns every trigger at exactly the next boundary time,
// ordered master-first then ascending channel index, and within a column
// in stored order (spec.md §4.1's tie-break rule), consuming them from
// their columns. It also advances the cursor's local pattern position to
// the boundary.
func (c *Cursor) DueTriggers() []event.Event {
	inst := c.current()
	if inst == nil {
		return nil
	}
	boundary, ok := c.NextBoundary()
	if !ok {
		return nil
	}
	c.localPos = boundary

	ordered := make([]*Column, len(inst.Columns))
	copy(ordered, inst.Columns)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var out []event.Event
	for _, col := range ordered {
		for {
			trig, ok := col.peek()
			if !ok || tstamp.Cmp(trig.At, boundary) != 0 {
				break
			}
			out = append(out, trig.Event)
			col.advance()
		}
	}
	return out
}

// Advance moves the cursor past the current pattern instance once
// localPos reaches the instance's length, cascading into the next
// system/track as needed. Returns false once every track is exhausted.
func (c *Cursor) Advance() bool {
	inst := c.current()
	if inst == nil {
		return false
	}
	if tstamp.Less(c.localPos, inst.Length) {
		return true
	}
	c.localPos = tstamp.Tstamp{}
	c.instIdx++
	t := c.Tracks[c.trackIdx]
	s := t.Systems[c.systemIdx]
	if c.instIdx >= len(s.Instances) {
		c.instIdx = 0
		c.systemIdx++
		if c.systemIdx >= len(t.Systems) {
			c.systemIdx = 0
			c.trackIdx++
		}
	}
	c.resetColumns()
	return !c.Done()
}

// Goto jumps the cursor directly to p, used by explicit goto/jump events
// (spec.md §3 "Position" point: "advances monotonically ... unless an
// explicit goto/jump event changes it"). Column read cursors within the
// target instance are rewound to its start; triggers strictly before
// p.PatternPos are treated as already delivered.
func (c *Cursor) Goto(p Pos) {
	c.trackIdx = p.Track
	c.systemIdx = p.System
	c.instIdx = p.PatternInstance
	c.localPos = p.PatternPos
	inst := c.current()
	if inst == nil {
		return
	}
	for _, col := range inst.Columns {
		col.reset()
		for {
			trig, ok := col.peek()
			if !ok || !tstamp.Less(trig.At, p.PatternPos) {
				break
			}
			col.advance()
		}
	}
}
