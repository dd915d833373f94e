package ipld

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []Value{
		nil,
		true,
		false,
		int64(0),
		int64(-42),
		int64(1 << 40),
		3.14159,
		"hello, homestar",
		[]byte{0x00, 0x01, 0xff},
		List{int64(1), "two", List{int64(3)}},
		Map{"b": int64(2), "a": int64(1)},
	}

	for _, v := range cases {
		enc, err := Encode(v)
		require.NoError(t, err)
		dec, err := Decode(enc)
		require.NoError(t, err)
		require.True(t, Equal(v, dec), "round trip mismatch for %#v -> %#v", v, dec)
	}
}

func TestMapKeyOrderIsCanonical(t *testing.T) {
	m1 := Map{"z": int64(1), "a": int64(2)}
	m2 := Map{"a": int64(2), "z": int64(1)}

	e1, err := Encode(m1)
	require.NoError(t, err)
	e2, err := Encode(m2)
	require.NoError(t, err)
	require.Equal(t, e1, e2, "encoding must not depend on Go map iteration order")
}

func TestFingerprintDeterministic(t *testing.T) {
	v := Map{"op": "wasm/run", "n": int64(7)}
	f1, err := FingerprintOf(v)
	require.NoError(t, err)
	f2, err := FingerprintOf(v)
	require.NoError(t, err)
	require.True(t, f1.Equals(f2))
	require.Equal(t, f1.String(), f2.String())
}

func TestFingerprintDistinguishesNonce(t *testing.T) {
	a := Map{"op": "wasm/run", "nonce": []byte{1}}
	b := Map{"op": "wasm/run", "nonce": []byte{2}}
	fa, err := FingerprintOf(a)
	require.NoError(t, err)
	fb, err := FingerprintOf(b)
	require.NoError(t, err)
	require.False(t, fa.Equals(fb))
}

func TestLinkRoundTrip(t *testing.T) {
	inner, err := FingerprintOf("target")
	require.NoError(t, err)
	link := Link{Fingerprint: inner}

	enc, err := Encode(link)
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)

	decLink, err := AsLink(dec)
	require.NoError(t, err)
	require.True(t, decLink.Fingerprint.Equals(inner))
}

func TestDecodeRejectsUnsortedMapKeys(t *testing.T) {
	// Hand-craft a map encoding with keys out of order: tagMap, count=2, "z", int, "a", int
	raw := []byte{tagMap, 2}
	raw = append(raw, byte(len("z")))
	raw = append(raw, "z"...)
	raw = append(raw, tagInt, 2) // zigzag(1) == 2
	raw = append(raw, byte(len("a")))
	raw = append(raw, "a"...)
	raw = append(raw, tagInt, 4) // zigzag(2) == 4
	_, err := Decode(raw)
	require.Error(t, err)
}

// TestRoundTripProperty is the invariant from spec.md §8.1: for every
// constructible value v, decode(encode(v)) == v and the fingerprints match.
func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	valueGen := genValue(3)

	properties.Property("decode(encode(v)) == v", prop.ForAll(
		func(v Value) bool {
			enc, err := Encode(v)
			if err != nil {
				return false
			}
			dec, err := Decode(enc)
			if err != nil {
				return false
			}
			return Equal(v, dec)
		},
		valueGen,
	))

	properties.Property("fingerprint(decode(encode(v))) == fingerprint(v)", prop.ForAll(
		func(v Value) bool {
			enc, err := Encode(v)
			if err != nil {
				return false
			}
			dec, err := Decode(enc)
			if err != nil {
				return false
			}
			f1, err := FingerprintOf(v)
			if err != nil {
				return false
			}
			f2, err := FingerprintOf(dec)
			if err != nil {
				return false
			}
			return f1.Equals(f2)
		},
		valueGen,
	))

	properties.TestingRun(t)
}

func genValue(depth int) gopter.Gen {
	scalar := gen.OneGenOf(
		gen.Const(Value(nil)),
		gen.Bool().Map(func(b bool) Value { return Value(b) }),
		gen.Int64().Map(func(i int64) Value { return Value(i) }),
		gen.Float64().Map(func(f float64) Value { return Value(f) }),
		gen.AlphaString().Map(func(s string) Value { return Value(s) }),
		gen.SliceOf(gen.UInt8()).Map(func(b []uint8) Value {
			out := make([]byte, len(b))
			copy(out, b)
			return Value(out)
		}),
	)
	if depth <= 0 {
		return scalar
	}
	composite := gen.OneGenOf(
		gen.SliceOfN(3, genValue(depth-1)).Map(func(vs []Value) Value { return Value(List(vs)) }),
		gen.MapOf(gen.AlphaString(), genValue(depth-1)).Map(func(m map[string]Value) Value { return Value(Map(m)) }),
	)
	return gen.OneGenOf(scalar, composite)
}
