package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchValidatesArgKind(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{Name: "c.force", Family: FamilyChannel, Arg: ArgFloat}, func(Target, Arg, interface{}, *[]Event) error {
		return nil
	})
	d := NewDispatcher(reg, nil)

	_, err := d.Dispatch(Event{Name: "c.force", Arg: Arg{Kind: ArgInt, Int: 1}}, nil)
	assert.Error(t, err)

	_, err = d.Dispatch(Event{Name: "c.force", Arg: Arg{Kind: ArgFloat, Float: 0.5}}, nil)
	assert.NoError(t, err)
}

func TestBindExpansionAppliesChannelOffsetAndConstraint(t *testing.T) {
	cache := map[[2]interface{}]Arg{}
	lookup := func(ch int, name string) (Arg, bool) {
		v, ok := cache[[2]interface{}{ch, name}]
		return v, ok
	}
	cache[[2]interface{}{0, "n.on"}] = Arg{Kind: ArgBool, Bool: true}

	binds := NewBindTable()
	binds.Add("n+", BindItem{
		Constraints: []Constraint{{EventName: "n.on", Expected: Arg{Kind: ArgBool, Bool: true}}},
		Targets:     []BindTarget{{ChannelOffset: 1, EventName: "n.echo", Arg: Arg{Kind: ArgNone}}},
	})
	require.NoError(t, binds.Validate())

	out := binds.Expand(Event{Name: "n+", Target: Target{Channel: 0}}, lookup)
	require.Len(t, out, 1)
	assert.Equal(t, "n.echo", out[0].Name)
	assert.Equal(t, 1, out[0].Target.Channel)
}

func TestBindExpansionSkipsWhenConstraintFails(t *testing.T) {
	lookup := func(int, string) (Arg, bool) { return Arg{}, false }
	binds := NewBindTable()
	binds.Add("n+", BindItem{
		Constraints: []Constraint{{EventName: "n.on", Expected: Arg{Kind: ArgBool, Bool: true}}},
		Targets:     []BindTarget{{EventName: "n.echo"}},
	})
	out := binds.Expand(Event{Name: "n+", Target: Target{Channel: 0}}, lookup)
	assert.Empty(t, out)
}

func TestBindValidateDetectsCycle(t *testing.T) {
	binds := NewBindTable()
	binds.Add("a", BindItem{Targets: []BindTarget{{EventName: "b"}}})
	binds.Add("b", BindItem{Targets: []BindTarget{{EventName: "a"}}})
	assert.Error(t, binds.Validate())
}

func TestBindValidateAcceptsChain(t *testing.T) {
	binds := NewBindTable()
	binds.Add("a", BindItem{Targets: []BindTarget{{EventName: "b"}}})
	binds.Add("b", BindItem{Targets: []BindTarget{{EventName: "c"}}})
	assert.NoError(t, binds.Validate())
}
