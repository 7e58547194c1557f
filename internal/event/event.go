// Package event implements event dispatch: argument-typed triggers, bind
// expansion with load-time cycle detection, and the five dispatch-family
// handler tables spec.md §4.2 describes, grounded on original_source's
// Event_creator.c/Event_handler.c naming and the device.ValidateDAG
// NEW/REACHED/VISITED discipline this repository already uses for device
// graphs.
package event

import (
	"fmt"

	"github.com/kagu/kunquat/internal/kerr"
)

// ArgKind tags the shape of an Event's argument (spec.md §3 "Event").
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgBool
	ArgInt
	ArgFloat
	ArgTstamp
	ArgString
	ArgPatternRef
	ArgMaybeString
)

// Arg is the tagged-union event argument.
type Arg struct {
	Kind   ArgKind
	Bool   bool
	Int    int64
	Float  float64
	Tstamp interface{} // tstamp.Tstamp, kept as interface{} to avoid an import cycle with position
	String string
	Valid  bool // for ArgMaybeString / ArgPatternRef: whether the value is present
}

// Family partitions event types into the five handler tables spec.md
// §4.2 point 3 names.
type Family int

const (
	FamilyChannel Family = iota
	FamilyAU
	FamilyMaster
	FamilyControl
	FamilyGeneral
)

// Target identifies where an event fires: a specific channel, or global
// (master/control-surface scope).
type Target struct {
	Channel int // -1 for global
}

// Global is the sentinel Target for events with no channel scope.
var Global = Target{Channel: -1}

// Event is one (name, argument, target) trigger (spec.md §3).
type Event struct {
	Name   string
	Arg    Arg
	Target Target
}

// Descriptor registers one event name's family and declared argument
// kind, used by the dispatcher for argument validation (spec.md §4.2
// point 1) before any handler or bind runs.
type Descriptor struct {
	Name   string
	Family Family
	Arg    ArgKind
}

// Handler mutates whatever state an event targets. ctx is dispatcher-
// supplied (the channel, master or AU state bundle); it may itself fire
// further events by appending to out.
type Handler func(target Target, arg Arg, ctx interface{}, out *[]Event) error

// Registry is the data-driven event table spec.md §9's REDESIGN FLAGS
// calls for in place of X-macro-generated name/id tables: descriptors and
// handlers keyed by interned event name.
type Registry struct {
	descriptors map[string]Descriptor
	handlers    map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		handlers:    make(map[string]Handler),
	}
}

// Register adds one event name's descriptor and handler. Registering the
// same name twice is a load-time programmer error, not a runtime one.
func (r *Registry) Register(d Descriptor, h Handler) {
	r.descriptors[d.Name] = d
	r.handlers[d.Name] = h
}

// Lookup returns the descriptor and handler for name, or ok=false if name
// is unregistered.
func (r *Registry) Lookup(name string) (Descriptor, Handler, bool) {
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, nil, false
	}
	return d, r.handlers[name], true
}

// validateArg checks ev's argument kind against its descriptor, per
// spec.md §4.2 point 1: a mismatch fails the event but never the block.
func validateArg(d Descriptor, arg Arg) error {
	if d.Arg != arg.Kind {
		return kerr.New(kerr.Argument, "event %q expects argument kind %d, got %d", d.Name, d.Arg, arg.Kind)
	}
	return nil
}

// Dispatcher owns a registry, a bind table, and the cache lookups bind
// constraints consult. It is the single entry point fire() and the
// player's per-block event loop both call through.
type Dispatcher struct {
	reg   *Registry
	binds *BindTable
	// CacheLookup returns the most recently fired argument for (channel,
	// eventName), used to evaluate bind constraints (spec.md §4.2 point 2).
	CacheLookup func(channel int, eventName string) (Arg, bool)
	// CacheStore records an event's argument into the channel's cache so
	// later constraint evaluation and carried arguments can see it.
	CacheStore func(channel int, eventName string, arg Arg)
}

// NewDispatcher builds a dispatcher over reg and binds.
func NewDispatcher(reg *Registry, binds *BindTable) *Dispatcher {
	return &Dispatcher{reg: reg, binds: binds}
}

// Dispatch validates, bind-expands and invokes the handler for ev,
// returning every event bind expansion produced (in emission order) so
// the caller can dispatch them in turn. ctxFor resolves the handler
// context for a given target (e.g. the addressed Channel).
func (d *Dispatcher) Dispatch(ev Event, ctxFor func(Target) interface{}) ([]Event, error) {
	desc, handler, ok := d.reg.Lookup(ev.Name)
	if !ok {
		return nil, kerr.New(kerr.Argument, "unknown event %q", ev.Name)
	}
	if err := validateArg(desc, ev.Arg); err != nil {
		return nil, err
	}

	if d.CacheStore != nil {
		d.CacheStore(ev.Target.Channel, ev.Name, ev.Arg)
	}

	var produced []Event
	if d.binds != nil {
		expansions := d.binds.Expand(ev, d.CacheLookup)
		produced = append(produced, expansions...)
	}

	if handler != nil {
		var ctx interface{}
		if ctxFor != nil {
			ctx = ctxFor(ev.Target)
		}
		var fired []Event
		if err := handler(ev.Target, ev.Arg, ctx, &fired); err != nil {
			return produced, err
		}
		produced = append(produced, fired...)
	}
	return produced, nil
}

func (k ArgKind) String() string {
	switch k {
	case ArgNone:
		return "none"
	case ArgBool:
		return "bool"
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgTstamp:
		return "tstamp"
	case ArgString:
		return "string"
	case ArgPatternRef:
		return "pattern_ref"
	case ArgMaybeString:
		return "maybe_string"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}
