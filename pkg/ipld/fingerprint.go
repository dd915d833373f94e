package ipld

import (
	"encoding/json"
	"fmt"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// codecRaw is the multicodec "raw" tag (0x55): the fingerprint covers raw
// canonical bytes produced by this package's own Encode, not a codec a
// generic IPLD reader would know how to re-parse. That's deliberate —
// the canonical encoding above is Homestar-specific, not dag-cbor/dag-json.
const codecRaw = 0x55

// Fingerprint is a self-describing content identifier: a multicodec tag
// plus a multihash digest over a value's canonical encoding. It is the
// identity used for memoization (Instruction.Fingerprint) and for every
// link in the data model.
type Fingerprint struct {
	cid cid.Cid
}

// FingerprintOf computes the content identifier of v: Encode(v), then a
// 256-bit SHA-2 digest, wrapped in a CIDv1 with the raw codec.
func FingerprintOf(v Value) (Fingerprint, error) {
	b, err := Encode(v)
	if err != nil {
		return Fingerprint{}, err
	}
	digest, err := mh.Sum(b, mh.SHA2_256, -1)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("ipld: hashing failed: %w", err)
	}
	return Fingerprint{cid: cid.NewCidV1(codecRaw, digest)}, nil
}

// FingerprintFromBytes parses a previously-serialized CID's byte form.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{cid: c}, nil
}

// ParseFingerprint parses a Fingerprint from its base32 text form (as seen
// on the wire in `{"/": "<base32 multihash>"}` links, spec.md §6).
func ParseFingerprint(s string) (Fingerprint, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("ipld: invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint{cid: c}, nil
}

// Bytes returns the binary form of the fingerprint (its CID bytes).
func (f Fingerprint) Bytes() []byte {
	return f.cid.Bytes()
}

// String returns the multibase base32 (lower-case) CID text form used on
// the wire.
func (f Fingerprint) String() string {
	return f.cid.String()
}

// IsZero reports whether f is the zero value (no CID set).
func (f Fingerprint) IsZero() bool {
	return !f.cid.Defined()
}

// Equals reports whether two fingerprints identify the same value.
func (f Fingerprint) Equals(other Fingerprint) bool {
	return f.cid.Equals(other.cid)
}

// MarshalJSON renders the IPLD link form `{"/": "<cid>"}`.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return []byte(`{"/":"` + f.cid.String() + `"}`), nil
}

// UnmarshalJSON parses the IPLD link form `{"/": "<cid>"}`.
func (f *Fingerprint) UnmarshalJSON(b []byte) error {
	var wrapper struct {
		Slash string `json:"/"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return fmt.Errorf("ipld: malformed link: %w", err)
	}
	parsed, err := ParseFingerprint(wrapper.Slash)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
