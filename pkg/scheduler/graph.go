package scheduler

import (
	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// ExecutionGraph is the compiled form of a Workflow: tasks grouped into
// ordered batches (every dependency of a task in batch N is satisfied
// by some task in an earlier batch) plus the deduplicated external
// resources the workflow needs fetched before batch 0 can run.
type ExecutionGraph struct {
	// Batches holds task positions (dense 0-based indices into the
	// original workflow.Tasks slice), grouped by execution batch.
	Batches [][]int

	// ExternalResources are resources named by deferred inputs that do
	// not resolve to any task in this workflow.
	ExternalResources []workflow.Resource
}

// Compile builds an ExecutionGraph for wf.
func Compile(wf workflow.Workflow) (ExecutionGraph, error) {
	tasks := wf.Tasks
	positions := make(map[string]int, len(tasks))
	instructions := make([]workflow.Instruction, len(tasks))

	for i, t := range tasks {
		instr, ok := t.Run.Instruction()
		if !ok {
			return ExecutionGraph{}, newTaskError(ErrNotExpandedInstruction, "task run is a pointer, not an inlined instruction", i)
		}
		instructions[i] = instr
		fp, err := instr.Fingerprint()
		if err != nil {
			return ExecutionGraph{}, newTaskError(ErrUnparseableInput, "fingerprinting instruction: "+err.Error(), i)
		}
		positions[fp.String()] = i
	}

	edgesIn := make([][]int, len(tasks))  // edgesIn[consumer] = producers it waits on
	edgesOut := make([][]int, len(tasks)) // edgesOut[producer] = consumers waiting on it
	externalSeen := make(map[string]workflow.Resource)

	for i, instr := range instructions {
		refs, err := extractDeferredRefs(instr.Input)
		if err != nil {
			return ExecutionGraph{}, newTaskError(ErrUnparseableInput, err.Error(), i)
		}
		for _, fp := range refs {
			if producer, ok := positions[fp.String()]; ok {
				edgesIn[i] = append(edgesIn[i], producer)
				edgesOut[producer] = append(edgesOut[producer], i)
			} else {
				resource := workflow.NewResourceFingerprint(fp)
				externalSeen[fp.String()] = resource
			}
		}
	}

	batches, err := topoBatch(len(tasks), edgesIn, edgesOut)
	if err != nil {
		return ExecutionGraph{}, err
	}

	external := make([]workflow.Resource, 0, len(externalSeen))
	for _, r := range externalSeen {
		external = append(external, r)
	}

	return ExecutionGraph{Batches: batches, ExternalResources: external}, nil
}

// topoBatch runs Kahn's algorithm, grouping every node with zero
// remaining in-degree into the current batch before removing them.
// Ties (multiple ready nodes) are broken by ascending workflow position.
func topoBatch(n int, edgesIn, edgesOut [][]int) ([][]int, error) {
	indegree := make([]int, n)
	for i := range edgesIn {
		indegree[i] = len(edgesIn[i])
	}

	remaining := n
	var batches [][]int
	for remaining > 0 {
		var ready []int
		for i := 0; i < n; i++ {
			if indegree[i] == 0 {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			return nil, newError(ErrCycleDetected, "no task with zero remaining dependencies")
		}
		for _, node := range ready {
			indegree[node] = -1 // mark consumed, excluded from future rounds
		}
		for _, node := range ready {
			for _, consumer := range edgesOut[node] {
				if indegree[consumer] > 0 {
					indegree[consumer]--
				}
			}
		}
		batches = append(batches, ready)
		remaining -= len(ready)
	}
	return batches, nil
}

// extractDeferredRefs walks v looking for deferred-reference shapes
// (single-key maps keyed by one of the three await branches), recursing
// into lists and literal (non-await) maps since Input may be a fully
// parsed argument list with nested references.
func extractDeferredRefs(v ipld.Value) ([]ipld.Fingerprint, error) {
	switch t := v.(type) {
	case ipld.Map:
		if await, ok := workflow.AsAwait(t); ok {
			return []ipld.Fingerprint{await.Instruction.Fingerprint()}, nil
		}
		if isAwaitShaped(t) {
			return nil, newError(ErrUnparseableInput, "await-branch key present but value is not a link")
		}
		var out []ipld.Fingerprint
		for _, elem := range t {
			refs, err := extractDeferredRefs(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, refs...)
		}
		return out, nil
	case ipld.List:
		var out []ipld.Fingerprint
		for _, elem := range t {
			refs, err := extractDeferredRefs(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, refs...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func isAwaitShaped(m ipld.Map) bool {
	if len(m) != 1 {
		return false
	}
	for k := range m {
		switch k {
		case workflow.OKBranch, workflow.ErrBranch, workflow.PtrBranch:
			return true
		}
	}
	return false
}
