package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// ResultTag identifies which arm of an InstructionResult is populated.
type ResultTag string

const (
	// ResultOK is a successful instruction outcome.
	ResultOK ResultTag = "ok"
	// ResultError is a failed instruction outcome.
	ResultError ResultTag = "error"
	// ResultJust is a raw, unbranched outcome: used when a downstream task
	// wants the value without distinguishing success from failure (e.g. a
	// hand-constructed cause, never emitted by the sandbox itself).
	ResultJust ResultTag = "just"
)

// InstructionResult is the tagged union `ok(T) | error(T) | just(T)`
// produced by running an Instruction and stored in a Receipt's "out"
// field.
type InstructionResult struct {
	Tag   ResultTag
	Value ipld.Value
}

// OK wraps v as a successful result.
func OK(v ipld.Value) InstructionResult {
	return InstructionResult{Tag: ResultOK, Value: v}
}

// ErrResult wraps v as a failed result (v is typically an encoded trap
// description, not a Go error).
func ErrResult(v ipld.Value) InstructionResult {
	return InstructionResult{Tag: ResultError, Value: v}
}

// Just wraps v as a raw, unbranched result.
func Just(v ipld.Value) InstructionResult {
	return InstructionResult{Tag: ResultJust, Value: v}
}

// IsOK reports whether r should satisfy an OKBranch selector. Per the
// branch-selection rule, `just` behaves like `ok`: it is never itself a
// failure signal.
func (r InstructionResult) IsOK() bool {
	return r.Tag == ResultOK || r.Tag == ResultJust
}

// IsError reports whether r is the error arm.
func (r InstructionResult) IsError() bool {
	return r.Tag == ResultError
}

// toValue renders the result as a single-key tagged map for canonical encoding.
func (r InstructionResult) toValue() ipld.Map {
	return ipld.Map{string(r.Tag): r.Value}
}

// MarshalJSON renders the result as its single-key tagged map.
func (r InstructionResult) MarshalJSON() ([]byte, error) {
	tree, err := toJSONTreeForInput(r.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{string(r.Tag): tree})
}

// UnmarshalJSON parses the single-key tagged map back into an InstructionResult.
func (r *InstructionResult) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return newError(ErrMalformedWire, "instruction result must have exactly one tag key")
	}
	for k, raw := range m {
		tag := ResultTag(k)
		switch tag {
		case ResultOK, ResultError, ResultJust:
		default:
			return newError(ErrMalformedWire, "unknown instruction result tag "+k)
		}
		v, err := ipld.UnmarshalJSONValue(raw)
		if err != nil {
			return err
		}
		r.Tag = tag
		r.Value = v
	}
	return nil
}
