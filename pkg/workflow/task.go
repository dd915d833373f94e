package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Run is the `run: Instruction | Pointer` field of a Task: either the
// instruction is inlined, or the task only carries a pointer to an
// instruction stored/known elsewhere.
type Run struct {
	instruction *Instruction
	pointer     *Pointer
}

// NewInlineRun wraps an inlined Instruction.
func NewInlineRun(i Instruction) Run {
	return Run{instruction: &i}
}

// NewPointerRun wraps a Pointer to an out-of-line Instruction.
func NewPointerRun(p Pointer) Run {
	return Run{pointer: &p}
}

// Instruction returns the inlined instruction and true, or the zero
// value and false if this Run only carries a pointer.
func (r Run) Instruction() (Instruction, bool) {
	if r.instruction == nil {
		return Instruction{}, false
	}
	return *r.instruction, true
}

// Pointer returns the out-of-line pointer and true, or the zero value
// and false if this Run carries an inlined instruction.
func (r Run) Pointer() (Pointer, bool) {
	if r.pointer == nil {
		return Pointer{}, false
	}
	return *r.pointer, true
}

// Fingerprint resolves the fingerprint of the instruction this Run
// refers to, computing it from the inline instruction if present.
func (r Run) Fingerprint() (ipld.Fingerprint, error) {
	if r.instruction != nil {
		return r.instruction.Fingerprint()
	}
	return r.pointer.Fingerprint(), nil
}

func (r Run) MarshalJSON() ([]byte, error) {
	if r.instruction != nil {
		return json.Marshal(*r.instruction)
	}
	return json.Marshal(*r.pointer)
}

func (r *Run) UnmarshalJSON(b []byte) error {
	var asPointer Pointer
	if err := json.Unmarshal(b, &asPointer); err == nil && !asPointer.Fingerprint().IsZero() {
		r.pointer = &asPointer
		return nil
	}
	var asInstruction Instruction
	if err := json.Unmarshal(b, &asInstruction); err != nil {
		return err
	}
	r.instruction = &asInstruction
	return nil
}

// Task is one step of a Workflow: what to run, the TaskConfig resource
// bounds for running it, an optional cause chaining to a prior receipt,
// free-form metadata, and a proof chain of pointers.
type Task struct {
	Run      Run
	Config   TaskConfig
	Cause    *Pointer
	Metadata ipld.Value
	Proof    []Pointer
}

// NewTask builds a Task with the given run and zero-value config/metadata/proof.
func NewTask(run Run) Task {
	return Task{Run: run}
}

type taskWire struct {
	Run      Run             `json:"run"`
	Cause    *Pointer        `json:"cause,omitempty"`
	Metadata json.RawMessage `json:"meta,omitempty"`
	Proof    []Pointer       `json:"prf"`
	Fuel     *uint64         `json:"fuel,omitempty"`
	Memory   *uint64         `json:"memory_bytes,omitempty"`
	TimeMs   *uint64         `json:"time_ms,omitempty"`
}

// MarshalJSON renders the task per spec.md §6: `{"run": Instruction, "meta": ..., "prf": []}`,
// with the TaskConfig resource bounds flattened alongside metadata.
func (t Task) MarshalJSON() ([]byte, error) {
	wire := taskWire{
		Run:    t.Run,
		Cause:  t.Cause,
		Proof:  t.Proof,
		Fuel:   t.Config.Fuel,
		Memory: t.Config.MemoryBytes,
		TimeMs: t.Config.TimeMillis,
	}
	if t.Metadata != nil {
		tree, err := toJSONTreeForInput(t.Metadata)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return nil, err
		}
		wire.Metadata = b
	}
	if wire.Proof == nil {
		wire.Proof = []Pointer{}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the wire shape documented on MarshalJSON.
func (t *Task) UnmarshalJSON(b []byte) error {
	var wire taskWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	t.Run = wire.Run
	t.Cause = wire.Cause
	t.Proof = wire.Proof
	t.Config = TaskConfig{Fuel: wire.Fuel, MemoryBytes: wire.Memory, TimeMillis: wire.TimeMs}
	if len(wire.Metadata) > 0 {
		v, err := ipld.UnmarshalJSONValue(wire.Metadata)
		if err != nil {
			return err
		}
		t.Metadata = v
	}
	return nil
}
