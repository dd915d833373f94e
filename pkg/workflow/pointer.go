package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Pointer references an Instruction, Task, or Receipt by identity, always
// wrapping a Fingerprint.
type Pointer struct {
	fp ipld.Fingerprint
}

// NewPointer wraps fp as a Pointer.
func NewPointer(fp ipld.Fingerprint) Pointer {
	return Pointer{fp: fp}
}

// Fingerprint returns the wrapped fingerprint.
func (p Pointer) Fingerprint() ipld.Fingerprint {
	return p.fp
}

// String renders the pointer's fingerprint text form.
func (p Pointer) String() string {
	return p.fp.String()
}

// MarshalJSON renders the IPLD link form `{"/": "<cid>"}`.
func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fp)
}

// UnmarshalJSON parses the IPLD link form `{"/": "<cid>"}`.
func (p *Pointer) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.fp)
}

const (
	// OKBranch selects the success arm of an awaited instruction's result.
	OKBranch = "await/ok"
	// ErrBranch selects the failure arm of an awaited instruction's result.
	ErrBranch = "await/error"
	// PtrBranch selects the raw, unwrapped result of an awaited instruction.
	PtrBranch = "await/*"
)

// Branch is one of OKBranch, ErrBranch, or PtrBranch.
type Branch string

// ParseBranch validates s is one of the three branch selectors.
func ParseBranch(s string) (Branch, error) {
	switch s {
	case OKBranch, ErrBranch, PtrBranch:
		return Branch(s), nil
	default:
		return "", newError(ErrBadBranch, "unknown await branch "+s)
	}
}

// Await is a deferred reference to another instruction's eventual output:
// a Pointer to the awaited Instruction plus the Branch selecting which
// arm of its InstructionResult to resolve to.
type Await struct {
	Instruction Pointer
	Result      Branch
}

// NewAwait builds an Await.
func NewAwait(instruction Pointer, result Branch) Await {
	return Await{Instruction: instruction, Result: result}
}

// MarshalJSON renders the single-key map `{"<branch>": <link>}`.
func (a Await) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Pointer{string(a.Result): a.Instruction})
}

// UnmarshalJSON parses the single-key map `{"<branch>": <link>}`.
func (a *Await) UnmarshalJSON(b []byte) error {
	var m map[string]Pointer
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return newError(ErrMalformedWire, "await promise must have exactly one key")
	}
	for k, v := range m {
		branch, err := ParseBranch(k)
		if err != nil {
			return err
		}
		a.Result = branch
		a.Instruction = v
	}
	return nil
}
