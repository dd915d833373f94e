package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Workflow is an ordered list of Tasks. Its Fingerprint is derived from
// the canonical encoding of that list, so reordering tasks changes
// workflow identity even when the task set is unchanged.
type Workflow struct {
	Tasks []Task
}

// NewWorkflow wraps tasks as a Workflow.
func NewWorkflow(tasks []Task) Workflow {
	return Workflow{Tasks: tasks}
}

// Fingerprint computes the workflow's content identity from the
// fingerprints of its tasks' instructions, in order.
func (w Workflow) Fingerprint() (ipld.Fingerprint, error) {
	fps := make(ipld.List, len(w.Tasks))
	for i, t := range w.Tasks {
		fp, err := t.Run.Fingerprint()
		if err != nil {
			return ipld.Fingerprint{}, err
		}
		fps[i] = ipld.Link{Fingerprint: fp}
	}
	return ipld.FingerprintOf(fps)
}

type workflowWire struct {
	Tasks []Task `json:"tasks"`
}

// MarshalJSON renders `{"tasks": [Task, ...]}`.
func (w Workflow) MarshalJSON() ([]byte, error) {
	tasks := w.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	return json.Marshal(workflowWire{Tasks: tasks})
}

// UnmarshalJSON parses `{"tasks": [Task, ...]}`.
func (w *Workflow) UnmarshalJSON(b []byte) error {
	var wire workflowWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	w.Tasks = wire.Tasks
	return nil
}
