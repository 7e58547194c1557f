package position

import (
	"testing"

	"github.com/kagu/kunquat/internal/event"
	"github.com/kagu/kunquat/internal/tstamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkInstance() *PatternInstance {
	return &PatternInstance{
		Length: tstamp.New(4, 0),
		Columns: []*Column{
			{Index: -1, Triggers: []Trigger{
				{At: tstamp.New(0, 0), Event: event.Event{Name: "mt"}},
			}},
			{Index: 0, Triggers: []Trigger{
				{At: tstamp.New(0, 0), Event: event.Event{Name: "n+"}},
				{At: tstamp.New(1, 0), Event: event.Event{Name: "n-"}},
			}},
			{Index: 1, Triggers: []Trigger{
				{At: tstamp.New(0, 0), Event: event.Event{Name: "n+"}},
			}},
		},
	}
}

func TestDueTriggersOrderedMasterFirstThenChannel(t *testing.T) {
	cur := NewCursor([]*Track{{Systems: []*System{{Instances: []*PatternInstance{mkInstance()}}}}})
	due := cur.DueTriggers()
	require.Len(t, due, 3)
	assert.Equal(t, "mt", due[0].Name)
	assert.Equal(t, "n+", due[1].Name)
	assert.Equal(t, "n+", due[2].Name)
}

func TestNextBoundaryIsNextPendingTrigger(t *testing.T) {
	cur := NewCursor([]*Track{{Systems: []*System{{Instances: []*PatternInstance{mkInstance()}}}}})
	cur.DueTriggers() // consumes t=0 triggers
	b, ok := cur.NextBoundary()
	require.True(t, ok)
	assert.Equal(t, 0, tstamp.Cmp(b, tstamp.New(1, 0)))
}

func TestAdvanceCascadesAcrossTracksAndReportsDone(t *testing.T) {
	cur := NewCursor([]*Track{{Systems: []*System{{Instances: []*PatternInstance{mkInstance()}}}}})
	cur.localPos = tstamp.New(4, 0)
	more := cur.Advance()
	assert.False(t, more)
	assert.True(t, cur.Done())
}

func TestGotoRewindsColumnsToTargetPosition(t *testing.T) {
	cur := NewCursor([]*Track{{Systems: []*System{{Instances: []*PatternInstance{mkInstance()}}}}})
	cur.Goto(Pos{PatternPos: tstamp.New(1, 0)})
	due := cur.DueTriggers()
	require.Len(t, due, 1)
	assert.Equal(t, "n-", due[0].Name)
}
