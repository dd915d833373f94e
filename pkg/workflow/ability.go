package workflow

import "strings"

// Ability names the capability an Instruction invokes, e.g. "wasm/run".
// Construction normalizes case and surrounding whitespace so that
// "Wasm/Run" and "wasm/run" fingerprint identically.
type Ability struct {
	verb string
}

// NewAbility trims and lowercases s, rejecting an empty result.
func NewAbility(s string) (Ability, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return Ability{}, newError(ErrEmptyAbility, "ability must not be empty")
	}
	return Ability{verb: v}, nil
}

// String returns the normalized ability verb.
func (a Ability) String() string {
	return a.verb
}

// IsZero reports whether a is the unconstructed zero value.
func (a Ability) IsZero() bool {
	return a.verb == ""
}
