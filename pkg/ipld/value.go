// Package ipld implements the canonical, content-addressed value model
// shared by every higher-level Homestar type (instructions, tasks,
// receipts, workflows). A Value is encoded deterministically and hashed
// to a self-describing Fingerprint so that structurally equal values
// always produce byte-identical identities, across peers and restarts.
package ipld

import (
	"fmt"
	"sort"
)

// Value is the canonical data-model value. It is restricted by
// construction (see Decode) to:
//
//	nil, bool, int64, float64, []byte, string, []Value, map[string]Value, Link
//
// Callers should not type-assert on Value directly; use the As* helpers,
// which return ErrShapeMismatch on a bad variant.
type Value interface{}

// Link is a typed reference to another Value by its Fingerprint. It is the
// only Value variant that participates in content-addressed linking.
type Link struct {
	Fingerprint Fingerprint
}

// Map is an ordered-on-encode string-keyed map. Iteration order of the
// underlying Go map is irrelevant; Encode always sorts keys.
type Map map[string]Value

// List is an ordered list of values.
type List []Value

// Null is the canonical nil value, provided for explicitness at call sites.
var Null Value = nil

// Equal reports whether two values are structurally equal. Map key order
// does not affect equality; slice/Link identity does.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !Equal(v, bvv) {
				return false
			}
		}
		return true
	case Link:
		bv, ok := b.(Link)
		return ok && av.Fingerprint.Equals(bv.Fingerprint)
	default:
		return false
	}
}

// sortedKeys returns m's keys in deterministic lexicographic order.
func sortedKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v Value) string {
	return fmt.Sprintf("%T", v)
}
