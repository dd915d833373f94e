package workflow

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// base32hexLower is the no-padding, lowercase RFC4648 base32hex alphabet
// used for the "nnc" wire field, matching the upstream encoder's choice
// of Base32HexLower (a concrete base32.Encoding variant, not a full
// multibase codec, since the nonce field carries no multibase prefix).
var base32hexLower = base32.HexEncoding.WithPadding(base32.NoPadding)

// NonceKind distinguishes the three allowed nonce shapes.
type NonceKind int

const (
	// NonceKindEmpty means no nonce was attributed.
	NonceKindEmpty NonceKind = iota
	// NonceKindNonce96 is a 96-bit, 12-byte nonce.
	NonceKindNonce96
	// NonceKindNonce128 is a 128-bit, 16-byte nonce.
	NonceKindNonce128
)

// Nonce participates in Instruction fingerprinting so that two otherwise
// identical instructions (same resource, ability, input) can be made to
// produce distinct fingerprints and distinct receipts.
type Nonce struct {
	kind  NonceKind
	bytes []byte
}

// EmptyNonce is the zero-length nonce variant.
func EmptyNonce() Nonce {
	return Nonce{kind: NonceKindEmpty}
}

// GenerateNonce returns a fresh 96-bit nonce, matching the default
// generator's output width.
func GenerateNonce() (Nonce, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return Nonce{}, err
	}
	return Nonce{kind: NonceKindNonce96, bytes: b}, nil
}

// GenerateNonce128 returns a fresh 128-bit nonce via a random UUIDv4.
func GenerateNonce128() (Nonce, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Nonce{}, err
	}
	b := id[:]
	return Nonce{kind: NonceKindNonce128, bytes: append([]byte(nil), b...)}, nil
}

// NewNonceFromBytes classifies raw bytes by length: 0 -> Empty, 12 ->
// Nonce96, 16 -> Nonce128. Any other length is rejected.
func NewNonceFromBytes(b []byte) (Nonce, error) {
	switch len(b) {
	case 0:
		return EmptyNonce(), nil
	case 12:
		return Nonce{kind: NonceKindNonce96, bytes: append([]byte(nil), b...)}, nil
	case 16:
		return Nonce{kind: NonceKindNonce128, bytes: append([]byte(nil), b...)}, nil
	default:
		return Nonce{}, newError(ErrBadNonceLength, "nonce must be 0, 12, or 16 bytes")
	}
}

// Kind reports which of the three nonce variants n is.
func (n Nonce) Kind() NonceKind {
	return n.kind
}

// Bytes returns the raw nonce bytes (nil for the Empty variant).
func (n Nonce) Bytes() []byte {
	return n.bytes
}

// String renders the nonce as Base32hex-lower text, or "" for Empty.
func (n Nonce) String() string {
	if n.kind == NonceKindEmpty {
		return ""
	}
	return strings.ToLower(base32hexLower.EncodeToString(n.bytes))
}

// ParseNonce parses the "nnc" wire field: "" for Empty, otherwise
// Base32hex-lower text decoding to 12 or 16 bytes.
func ParseNonce(s string) (Nonce, error) {
	if s == "" {
		return EmptyNonce(), nil
	}
	b, err := base32hexLower.DecodeString(strings.ToUpper(s))
	if err != nil {
		return Nonce{}, newError(ErrMalformedWire, "invalid base32hex nonce: "+err.Error())
	}
	return NewNonceFromBytes(b)
}
