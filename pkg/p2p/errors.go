// Package p2p is the peer-to-peer transport: a gossipsub topic for
// newly-produced receipts, a Kademlia DHT for content-routed receipt and
// workflow-info lookups, a request-response protocol for point-to-point
// workflow-info fetch, and mDNS/rendezvous/AutoNAT discovery of other
// Homestar nodes.
package p2p

import "fmt"

// ErrorCode identifies why a network operation failed.
type ErrorCode string

const (
	// ErrTransport is a libp2p-level failure: dialing, stream, or host
	// setup faults that aren't about the content being fetched.
	ErrTransport ErrorCode = "TRANSPORT"
	// ErrRecordNotFound means the DHT (or a connected peer) has no
	// record for the requested key.
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	// ErrVersionMismatch means a peer's record could not be decoded as a
	// capsule at all (malformed JSON), or a receipt's output was not the
	// raw bytes a resource fetch expects.
	ErrVersionMismatch ErrorCode = "VERSION_MISMATCH"
	// ErrCapsuleTagMismatch means a record decoded but did not carry the
	// expected capsule tag: a missing tag, another capsule kind, or a
	// version tag this node doesn't recognize (e.g. "receipt/2.0").
	ErrCapsuleTagMismatch ErrorCode = "CAPSULE_TAG_MISMATCH"
)

// Error is a typed network-layer failure.
type Error struct {
	Code ErrorCode
	Key  string
	Msg  string
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("p2p: %s: %s (key %s)", e.Code, e.Msg, e.Key)
	}
	return fmt.Sprintf("p2p: %s: %s", e.Code, e.Msg)
}

func newError(code ErrorCode, key, msg string) error {
	return &Error{Code: code, Key: key, Msg: msg}
}
