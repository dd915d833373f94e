package workflow

import (
	"encoding/json"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Instruction is the atomic unit of work: a resource to fetch, an
// ability (verb) to invoke on it, the input to invoke with, and a nonce
// to distinguish otherwise-identical instructions. Its Fingerprint is
// the identity used for memoization in the receipt store.
type Instruction struct {
	Resource Resource
	Ability  Ability
	Input    Input
	Nonce    Nonce
}

// NewInstruction builds an Instruction from its four fields.
func NewInstruction(resource Resource, ability Ability, input Input, nonce Nonce) Instruction {
	return Instruction{Resource: resource, Ability: ability, Input: input, Nonce: nonce}
}

// toValue renders the instruction as the canonical data-model value that
// is encoded and fingerprinted.
func (i Instruction) toValue() ipld.Map {
	m := ipld.Map{
		"rsc": i.Resource.String(),
		"op":  i.Ability.String(),
	}
	if i.Input != nil {
		m["input"] = i.Input
	}
	if i.Nonce.Kind() != NonceKindEmpty {
		m["nnc"] = i.Nonce.Bytes()
	}
	return m
}

// Fingerprint computes the instruction's content identity.
func (i Instruction) Fingerprint() (ipld.Fingerprint, error) {
	return ipld.FingerprintOf(i.toValue())
}

type instructionWire struct {
	Resource Resource `json:"rsc"`
	Ability  string   `json:"op"`
	Input    Input    `json:"input,omitempty"`
	Nonce    string   `json:"nnc"`
}

// MarshalJSON renders the instruction per spec.md §6:
// `{"rsc": "<url>", "op": "<ability>", "input": {...}, "nnc": "<base32-nonce or empty>"}`.
func (i Instruction) MarshalJSON() ([]byte, error) {
	var inputTree interface{}
	if i.Input != nil {
		tree, err := toJSONTreeForInput(i.Input)
		if err != nil {
			return nil, err
		}
		inputTree = tree
	}
	return json.Marshal(struct {
		Resource Resource    `json:"rsc"`
		Ability  string      `json:"op"`
		Input    interface{} `json:"input,omitempty"`
		Nonce    string      `json:"nnc"`
	}{
		Resource: i.Resource,
		Ability:  i.Ability.String(),
		Input:    inputTree,
		Nonce:    i.Nonce.String(),
	})
}

// UnmarshalJSON parses the wire shape documented on MarshalJSON.
func (i *Instruction) UnmarshalJSON(b []byte) error {
	var raw struct {
		Resource Resource        `json:"rsc"`
		Ability  string          `json:"op"`
		Input    json.RawMessage `json:"input"`
		Nonce    string          `json:"nnc"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ability, err := NewAbility(raw.Ability)
	if err != nil {
		return err
	}
	nonce, err := ParseNonce(raw.Nonce)
	if err != nil {
		return err
	}
	var input Input
	if len(raw.Input) > 0 {
		input, err = ipld.UnmarshalJSONValue(raw.Input)
		if err != nil {
			return err
		}
	}
	i.Resource = raw.Resource
	i.Ability = ability
	i.Input = input
	i.Nonce = nonce
	return nil
}

func toJSONTreeForInput(v Input) (interface{}, error) {
	b, err := ipld.MarshalJSONValue(v)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
