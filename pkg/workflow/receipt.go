package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Receipt is the cryptographically verifiable record that an Instruction
// ran and produced a given InstructionResult. Its Fingerprint is derived
// from the canonical encoding, so receipts are content-addressed the
// same way instructions are.
type Receipt struct {
	Ran      Pointer
	Out      InstructionResult
	Meta     ipld.Value
	Issuer   string // principal id; empty means unattributed
	Proof    []Pointer
}

// NewReceipt builds a Receipt for a completed instruction run.
func NewReceipt(ran Pointer, out InstructionResult, meta ipld.Value, proof []Pointer) Receipt {
	return Receipt{Ran: ran, Out: out, Meta: meta, Proof: proof}
}

func (r Receipt) toValue() (ipld.Map, error) {
	m := ipld.Map{
		"ran": ipld.Link{Fingerprint: r.Ran.Fingerprint()},
		"out": r.Out.toValue(),
	}
	if r.Meta != nil {
		m["meta"] = r.Meta
	}
	if r.Issuer != "" {
		m["issuer"] = r.Issuer
	}
	proof := make(ipld.List, len(r.Proof))
	for i, p := range r.Proof {
		proof[i] = ipld.Link{Fingerprint: p.Fingerprint()}
	}
	m["prf"] = proof
	return m, nil
}

// Fingerprint computes the receipt's content identity.
func (r Receipt) Fingerprint() (ipld.Fingerprint, error) {
	v, err := r.toValue()
	if err != nil {
		return ipld.Fingerprint{}, err
	}
	return ipld.FingerprintOf(v)
}

// InstructionFingerprint is the memoization key this receipt answers
// for: the fingerprint of the Instruction named by Ran.
func (r Receipt) InstructionFingerprint() ipld.Fingerprint {
	return r.Ran.Fingerprint()
}

type receiptWire struct {
	Ran    Pointer           `json:"ran"`
	Out    InstructionResult `json:"out"`
	Meta   json.RawMessage   `json:"meta,omitempty"`
	Issuer string            `json:"issuer,omitempty"`
	Proof  []Pointer         `json:"prf"`
}

// MarshalJSON renders the receipt's wire shape, wrapped by callers in the
// `{"receipt/1.0": <receipt>}` capsule (see pkg/events and pkg/p2p).
func (r Receipt) MarshalJSON() ([]byte, error) {
	wire := receiptWire{Ran: r.Ran, Out: r.Out, Issuer: r.Issuer, Proof: r.Proof}
	if wire.Proof == nil {
		wire.Proof = []Pointer{}
	}
	if r.Meta != nil {
		tree, err := toJSONTreeForInput(r.Meta)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return nil, err
		}
		wire.Meta = b
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the receipt's wire shape.
func (r *Receipt) UnmarshalJSON(b []byte) error {
	var wire receiptWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	r.Ran = wire.Ran
	r.Out = wire.Out
	r.Issuer = wire.Issuer
	r.Proof = wire.Proof
	if len(wire.Meta) > 0 {
		v, err := ipld.UnmarshalJSONValue(wire.Meta)
		if err != nil {
			return err
		}
		r.Meta = v
	}
	return nil
}
