package device

import (
	"testing"

	"github.com/kagu/kunquat/internal/workbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	id          int
	mixed       bool
	voice       bool
	renderCalls *[]int
}

func (f *fakeProc) ID() int                  { return f.id }
func (f *fakeProc) ProducesMixedSignal() bool { return f.mixed }
func (f *fakeProc) ProducesVoiceSignal() bool { return f.voice }
func (f *fakeProc) VStateSize() int           { return 0 }
func (f *fakeProc) InitVState(interface{})    {}
func (f *fakeProc) RenderVoice(interface{}, *workbuf.Pool, int, int, float64) int {
	return 0
}
func (f *fakeProc) RenderMixed(wbs *workbuf.Pool, frameCount int, tempoBPM float64) {
	*f.renderCalls = append(*f.renderCalls, f.id)
}

func TestBuildMixedPlanLevelsAndOrder(t *testing.T) {
	var calls []int
	procs := map[int]Processor{
		1: &fakeProc{id: 1, mixed: true, renderCalls: &calls},
		2: &fakeProc{id: 2, mixed: true, renderCalls: &calls},
	}
	// 1 -> 2 -> master
	cons := []Connection{
		{SrcDevice: 1, SrcPort: 0, DstDevice: 2, DstPort: 0},
		{SrcDevice: 2, SrcPort: 0, DstDevice: MasterID, DstPort: 0},
	}
	plan, err := BuildMixedPlan(cons, procs)
	require.NoError(t, err)
	require.Len(t, plan.LevelsDeepToShallow, 2)
	// Deepest level (farthest from master) runs first: device 1.
	assert.Equal(t, 1, plan.LevelsDeepToShallow[0][0].DeviceID)
	assert.Equal(t, 2, plan.LevelsDeepToShallow[1][0].DeviceID)

	wbs := workbuf.NewPool(64)
	bufID := NewPortBuffers()
	plan.Execute(wbs, bufID, 64, 120)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestBuildMixedPlanDetectsCycle(t *testing.T) {
	procs := map[int]Processor{
		1: &fakeProc{id: 1, mixed: true, renderCalls: &[]int{}},
		2: &fakeProc{id: 2, mixed: true, renderCalls: &[]int{}},
	}
	cons := []Connection{
		{SrcDevice: 1, SrcPort: 0, DstDevice: 2, DstPort: 0},
		{SrcDevice: 2, SrcPort: 0, DstDevice: 1, DstPort: 0},
	}
	_, err := BuildMixedPlan(cons, procs)
	assert.Error(t, err)
}

func TestValidateDAGDetectsCycle(t *testing.T) {
	cons := []Connection{
		{SrcDevice: 1, DstDevice: 2},
		{SrcDevice: 2, DstDevice: 3},
		{SrcDevice: 3, DstDevice: 1},
	}
	assert.Error(t, ValidateDAG(cons))

	acyclic := []Connection{
		{SrcDevice: 1, DstDevice: 2},
		{SrcDevice: 2, DstDevice: 3},
	}
	assert.NoError(t, ValidateDAG(acyclic))
}
