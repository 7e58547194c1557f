package voice

import (
	"testing"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/workbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProc struct{ vstateSize int }

func (s stubProc) ID() int                  { return 0 }
func (s stubProc) ProducesMixedSignal() bool { return false }
func (s stubProc) ProducesVoiceSignal() bool { return true }
func (s stubProc) VStateSize() int           { return s.vstateSize }
func (s stubProc) InitVState(vstate interface{}) {}
func (s stubProc) RenderVoice(vstate interface{}, wbs *workbuf.Pool, instance, frameCount int, tempoBPM float64) int {
	return 0
}
func (s stubProc) RenderMixed(wbs *workbuf.Pool, frameCount int, tempoBPM float64) {}

func noSeed(uint64) uint64 { return 0 }

func TestCountByPrioritySumsToCapacity(t *testing.T) {
	p := NewPool(4)
	inactive, background, foreground := p.CountByPriority()
	assert.Equal(t, 4, inactive)
	assert.Equal(t, 0, background)
	assert.Equal(t, 0, foreground)
}

func TestAllocateGroupFailsAtomicallyWhenExhausted(t *testing.T) {
	p := NewPool(1)
	procs := []device.Processor{stubProc{}, stubProc{}}
	g, err := p.AllocateGroup(0, 0, Foreground, procs, noSeed)
	assert.Nil(t, g)
	assert.Error(t, err)
	inactive, _, _ := p.CountByPriority()
	assert.Equal(t, 1, inactive)
	assert.Equal(t, uint64(1), p.Stats.DroppedNotes)
}

func TestStealingPrefersInactiveThenLowestGeneration(t *testing.T) {
	p := NewPool(2)
	g1, err := p.AllocateGroup(0, 0, Background, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	require.Len(t, g1.Voices, 1)

	g2, err := p.AllocateGroup(0, 0, Background, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	require.Len(t, g2.Voices, 1)
	assert.NotEqual(t, g1.Voices[0].SlotIndex, g2.Voices[0].SlotIndex)

	// Both slots are now Background with generation 1; a third allocation
	// must steal one, breaking the tie by ascending generation then
	// ascending group id (the recorded Open Question decision).
	g3, err := p.AllocateGroup(0, 0, Background, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	require.Len(t, g3.Voices, 1)
	assert.Equal(t, g1.Voices[0].SlotIndex, g3.Voices[0].SlotIndex)
	assert.Equal(t, uint64(2), g3.Voices[0].Generation)
}

// TestStealingCanTargetTheFirstEverGroup guards against a specific
// regression: group ids start at 0 (nextGroupID's zero value), so a naive
// "no group excluded" sentinel of 0 would wrongly make the very first
// group allocated permanently un-stealable. Group 0 must remain a fully
// eligible FOREGROUND steal candidate once it's the oldest generation.
func TestStealingCanTargetTheFirstEverGroup(t *testing.T) {
	p := NewPool(4)
	g0, err := p.AllocateGroup(0, 0, Foreground, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	require.Equal(t, uint64(0), g0.ID)

	for i := 0; i < 3; i++ {
		_, err := p.AllocateGroup(0, 0, Foreground, []device.Processor{stubProc{}}, noSeed)
		require.NoError(t, err)
	}

	_, _, foreground := p.CountByPriority()
	require.Equal(t, 4, foreground)

	// A 5th allocation must steal a FOREGROUND slot; group 0 has the
	// lowest generation (1, from its own allocation) of any slot and must
	// be the first one picked.
	g4, err := p.AllocateGroup(0, 0, Foreground, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	assert.Equal(t, g0.Voices[0].SlotIndex, g4.Voices[0].SlotIndex)
}

func TestForegroundDemotionOnNewForegroundNote(t *testing.T) {
	p := NewPool(2)
	g1, err := p.AllocateGroup(0, 0, Foreground, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)

	_, background, foreground := p.CountByPriority()
	assert.Equal(t, 0, background)
	assert.Equal(t, 1, foreground)

	p.DemoteForeground(g1.ID)
	_, background, foreground = p.CountByPriority()
	assert.Equal(t, 1, background)
	assert.Equal(t, 0, foreground)
}

func TestCutGroupThenFreeInactiveReclaimsSlot(t *testing.T) {
	p := NewPool(1)
	g, err := p.AllocateGroup(0, 0, Foreground, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)

	p.CutGroup(g.ID)
	p.FreeInactive()

	inactive, _, _ := p.CountByPriority()
	assert.Equal(t, 1, inactive)

	p.StartIteration()
	assert.Nil(t, p.GetNextGroup())
}

func TestIterationWalksGroupsInAscendingOrder(t *testing.T) {
	p := NewPool(4)
	g1, err := p.AllocateGroup(0, 0, Background, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)
	g2, err := p.AllocateGroup(0, 0, Background, []device.Processor{stubProc{}}, noSeed)
	require.NoError(t, err)

	p.StartIteration()
	first := p.GetNextGroup()
	second := p.GetNextGroup()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, g1.ID, first.ID)
	assert.Equal(t, g2.ID, second.ID)
	assert.Nil(t, p.GetNextGroup())
}
