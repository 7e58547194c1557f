package event

import "fmt"

// Constraint is a boolean expression over a channel's event-argument
// cache, evaluated by comparing the cached argument for one event name
// against an expected value (spec.md §4.2 point 2). A constraint with an
// Arg.Kind of ArgNone always evaluates true (unconditional bind item).
type Constraint struct {
	EventName string
	Expected  Arg
}

func (c Constraint) holds(channel int, lookup func(int, string) (Arg, bool)) bool {
	if c.Expected.Kind == ArgNone {
		return true
	}
	if lookup == nil {
		return false
	}
	got, ok := lookup(channel, c.EventName)
	if !ok {
		return false
	}
	return argsEqual(got, c.Expected)
}

func argsEqual(a, b Arg) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ArgBool:
		return a.Bool == b.Bool
	case ArgInt:
		return a.Int == b.Int
	case ArgFloat:
		return a.Float == b.Float
	case ArgString, ArgMaybeString:
		return a.String == b.String
	default:
		return true
	}
}

// BindTarget is one (channel_offset, target_event, target_arg_template)
// triple a bind item emits when its constraints hold.
type BindTarget struct {
	ChannelOffset int
	EventName     string
	Arg           Arg
}

// BindItem is one candidate item in a trigger event's binding list: all
// Constraints must hold for Targets to fire.
type BindItem struct {
	Constraints []Constraint
	Targets     []BindTarget
}

// BindTable maps a trigger event name to its candidate bind items
// (spec.md §4.2 point 2).
type BindTable struct {
	items map[string][]BindItem
}

// NewBindTable creates an empty bind table.
func NewBindTable() *BindTable {
	return &BindTable{items: make(map[string][]BindItem)}
}

// Add registers one bind item for triggerEvent.
func (b *BindTable) Add(triggerEvent string, item BindItem) {
	b.items[triggerEvent] = append(b.items[triggerEvent], item)
}

// Validate runs the load-time cycle check spec.md §4.2 point 2 mandates:
// a DFS over the bind graph (trigger event -> target event name) using
// the NEW/REACHED/VISITED marker discipline, the same one device.ValidateDAG
// applies to connection graphs. A cyclic bind graph returns a plain error,
// which Handle.Validate wraps as a kerr Format error, matching spec.md §7
// point 2's "cyclic bind" example and §8's "no module passes validate and
// then cycles at render time" invariant.
func (b *BindTable) Validate() error {
	const (
		markNew = iota
		markReached
		markVisited
	)
	marks := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case markVisited:
			return nil
		case markReached:
			return fmt.Errorf("cyclic bind at event %q", name)
		}
		marks[name] = markReached
		for _, item := range b.items[name] {
			for _, t := range item.Targets {
				if err := visit(t.EventName); err != nil {
					return err
				}
			}
		}
		marks[name] = markVisited
		return nil
	}
	for name := range b.items {
		if marks[name] == markNew {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Expand evaluates every bind item registered for ev.Name and returns the
// target events produced by items whose constraints all hold, with each
// target's channel_offset applied relative to ev's own channel (spec.md
// §4.2 point 2). Binds may chain: a produced event may itself be a
// trigger, which the caller re-dispatches (Dispatcher.Dispatch does not
// recurse here so the caller can interleave re-dispatch with its own
// event-buffer bookkeeping, per spec.md's "coroutine-style bind
// suspension" note).
func (b *BindTable) Expand(ev Event, lookup func(int, string) (Arg, bool)) []Event {
	var out []Event
	for _, item := range b.items[ev.Name] {
		ok := true
		for _, c := range item.Constraints {
			if !c.holds(ev.Target.Channel, lookup) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for _, t := range item.Targets {
			target := ev.Target
			if target.Channel >= 0 {
				target.Channel += t.ChannelOffset
			}
			out = append(out, Event{Name: t.EventName, Arg: t.Arg, Target: target})
		}
	}
	return out
}
