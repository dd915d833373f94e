package workflow

import "github.com/Mindburn-Labs/homestar/pkg/ipld"

// Input is the argument data an Instruction is invoked with. It is not a
// distinct Go type: per spec it is one of (a) a literal value in the
// data model, (b) a deferred await-reference, or (c) a fully parsed
// argument list — and all three are representable directly as an
// ipld.Value, since an Await promise is itself just the single-key map
// `{"<branch>": <link>}`. These helpers build and recognize that shape
// so pkg/resolver can walk an Instruction's input looking for promises
// without needing a parallel value type.
type Input = ipld.Value

// NewAwaitInput renders an Await as its Input (Value) form.
func NewAwaitInput(a Await) Input {
	return ipld.Map{string(a.Result): ipld.Link{Fingerprint: a.Instruction.Fingerprint()}}
}

// AsAwait recognizes v as an Await promise, if it has that shape:
// exactly one key, one of the three branch selectors, whose value is a
// Link.
func AsAwait(v Input) (Await, bool) {
	m, ok := v.(ipld.Map)
	if !ok || len(m) != 1 {
		return Await{}, false
	}
	for k, val := range m {
		branch, err := ParseBranch(k)
		if err != nil {
			return Await{}, false
		}
		link, ok := val.(ipld.Link)
		if !ok {
			return Await{}, false
		}
		return NewAwait(NewPointer(link.Fingerprint), branch), true
	}
	return Await{}, false
}

// NewArgsInput renders a parsed argument list as its Input (Value) form.
func NewArgsInput(args []Input) Input {
	return ipld.List(args)
}
