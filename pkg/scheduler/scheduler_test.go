package scheduler

import (
	"testing"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func mustAbility(t *testing.T, s string) workflow.Ability {
	t.Helper()
	a, err := workflow.NewAbility(s)
	require.NoError(t, err)
	return a
}

// TestTwoStageChainBatches mirrors workflow's Scenario B fixture: task 2
// awaits task 1's result, so they must land in two sequential batches.
func TestTwoStageChainBatches(t *testing.T) {
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability := mustAbility(t, "add-one")

	task1Instr := workflow.NewInstruction(resource, ability, ipld.List{int64(1)}, workflow.EmptyNonce())
	task1Fp, err := task1Instr.Fingerprint()
	require.NoError(t, err)

	task2Input := workflow.NewAwaitInput(workflow.NewAwait(workflow.NewPointer(task1Fp), workflow.OKBranch))
	task2Instr := workflow.NewInstruction(resource, ability, task2Input, workflow.EmptyNonce())

	wf := workflow.NewWorkflow([]workflow.Task{
		workflow.NewTask(workflow.NewInlineRun(task1Instr)),
		workflow.NewTask(workflow.NewInlineRun(task2Instr)),
	})

	graph, err := Compile(wf)
	require.NoError(t, err)
	require.Equal(t, [][]int{{0}, {1}}, graph.Batches)
	require.Empty(t, graph.ExternalResources)
}

// TestIndependentTasksSingleBatch verifies two tasks with no dependency
// on each other land in the same batch.
func TestIndependentTasksSingleBatch(t *testing.T) {
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability := mustAbility(t, "add-one")

	i1 := workflow.NewInstruction(resource, ability, ipld.List{int64(1)}, workflow.EmptyNonce())
	i2 := workflow.NewInstruction(resource, ability, ipld.List{int64(2)}, workflow.EmptyNonce())

	wf := workflow.NewWorkflow([]workflow.Task{
		workflow.NewTask(workflow.NewInlineRun(i1)),
		workflow.NewTask(workflow.NewInlineRun(i2)),
	})

	graph, err := Compile(wf)
	require.NoError(t, err)
	require.Len(t, graph.Batches, 1)
	require.ElementsMatch(t, []int{0, 1}, graph.Batches[0])
}

// TestExternalResourceCollected verifies a deferred reference to a
// fingerprint outside the workflow is surfaced as an external resource
// rather than a local edge, and the task still batches on its own.
func TestExternalResourceCollected(t *testing.T) {
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability := mustAbility(t, "add-one")

	otherInstr := workflow.NewInstruction(resource, ability, ipld.List{int64(99)}, workflow.EmptyNonce())
	otherFp, err := otherInstr.Fingerprint()
	require.NoError(t, err)

	input := workflow.NewAwaitInput(workflow.NewAwait(workflow.NewPointer(otherFp), workflow.OKBranch))
	instr := workflow.NewInstruction(resource, ability, input, workflow.EmptyNonce())

	wf := workflow.NewWorkflow([]workflow.Task{
		workflow.NewTask(workflow.NewInlineRun(instr)),
	})

	graph, err := Compile(wf)
	require.NoError(t, err)
	require.Equal(t, [][]int{{0}}, graph.Batches)
	require.Len(t, graph.ExternalResources, 1)
	require.True(t, graph.ExternalResources[0].IsFingerprint())
	require.True(t, graph.ExternalResources[0].Fingerprint().Equals(otherFp))
}

// TestCycleDetected verifies the batching step rejects a dependency
// cycle rather than silently batching. An Instruction's fingerprint
// depends on its Input, so two instructions that await each other's
// fingerprint cannot be built; the test hands topoBatch a two-node
// cyclic edge set (task 0 depends on task 1 and task 1 on task 0)
// directly.
func TestCycleDetected(t *testing.T) {
	_, err := topoBatch(2, [][]int{{1}, {0}}, [][]int{{1}, {0}})
	require.Error(t, err)
	var schedErr *Error
	require.ErrorAs(t, err, &schedErr)
	require.Equal(t, ErrCycleDetected, schedErr.Code)
}

// TestNotExpandedInstruction verifies a task whose Run only carries a
// Pointer (never inlined) is rejected up front, since its input can't
// be parsed for dependencies.
func TestNotExpandedInstruction(t *testing.T) {
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability := mustAbility(t, "add-one")
	instr := workflow.NewInstruction(resource, ability, ipld.List{int64(1)}, workflow.EmptyNonce())
	fp, err := instr.Fingerprint()
	require.NoError(t, err)

	wf := workflow.NewWorkflow([]workflow.Task{
		workflow.NewTask(workflow.NewPointerRun(workflow.NewPointer(fp))),
	})

	_, err = Compile(wf)
	require.Error(t, err)
	var schedErr *Error
	require.ErrorAs(t, err, &schedErr)
	require.Equal(t, ErrNotExpandedInstruction, schedErr.Code)
	require.Equal(t, 0, schedErr.TaskPos)
}

// TestUnparseableInputRejected verifies a map keyed by an await branch
// whose value is not a link is rejected rather than silently treated as
// having no dependencies.
func TestUnparseableInputRejected(t *testing.T) {
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability := mustAbility(t, "add-one")
	malformed := ipld.Map{workflow.OKBranch: int64(1)}
	instr := workflow.NewInstruction(resource, ability, malformed, workflow.EmptyNonce())

	wf := workflow.NewWorkflow([]workflow.Task{
		workflow.NewTask(workflow.NewInlineRun(instr)),
	})

	_, err := Compile(wf)
	require.Error(t, err)
	var schedErr *Error
	require.ErrorAs(t, err, &schedErr)
	require.Equal(t, ErrUnparseableInput, schedErr.Code)
}
