// Package workflow implements the domain types that sit on top of the
// canonical value model in pkg/ipld: abilities, resources, nonces,
// deferred inputs, instructions, tasks, workflows, and receipts.
package workflow

import "fmt"

// ErrorCode identifies the category of a domain-construction failure.
type ErrorCode string

const (
	// ErrEmptyAbility means an Ability was constructed from an all-whitespace string.
	ErrEmptyAbility ErrorCode = "EMPTY_ABILITY"
	// ErrBadNonceLength means a nonce was neither 0, 12, nor 16 bytes.
	ErrBadNonceLength ErrorCode = "BAD_NONCE_LENGTH"
	// ErrBadBranch means an await map key was not one of the three branch selectors.
	ErrBadBranch ErrorCode = "BAD_BRANCH"
	// ErrMalformedWire means the JSON wire form didn't match the documented shape.
	ErrMalformedWire ErrorCode = "MALFORMED_WIRE"
)

// Error is a typed domain-construction failure.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow: %s: %s", e.Code, e.Msg)
}

func newError(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}
