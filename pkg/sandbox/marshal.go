package sandbox

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/tetratelabs/wazero/api"
)

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// marshalArgs chooses between the direct-scalar calling convention (every
// arg is a scalar and the export's declared params match them 1:1) and
// the buffer convention (exactly two i32 params: a pointer and a length
// into linear memory, for any composite arg list).
func marshalArgs(ctx context.Context, mod api.Module, paramTypes []api.ValueType, args []ipld.Value) ([]uint64, error) {
	if len(paramTypes) == len(args) && allScalar(args) {
		out := make([]uint64, len(args))
		for i, a := range args {
			v, ok, err := marshalScalar(a, paramTypes[i])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, newError(ErrTypeMismatch, "argument does not match declared parameter type")
			}
			out[i] = v
		}
		return out, nil
	}

	if len(paramTypes) != 2 || paramTypes[0] != api.ValueTypeI32 || paramTypes[1] != api.ValueTypeI32 {
		return nil, newError(ErrTypeMismatch, "composite arguments require a (ptr, len) export signature")
	}
	encoded, err := ipld.Encode(ipld.List(args))
	if err != nil {
		return nil, newError(ErrTypeMismatch, "encoding composite arguments: "+err.Error())
	}
	ptr, wErr := writeToGuestMemory(ctx, mod, encoded)
	if wErr != nil {
		return nil, wErr
	}
	return []uint64{uint64(ptr), uint64(len(encoded))}, nil
}

// unmarshalResults mirrors marshalArgs: all-scalar results translate
// directly, a single (ptr, len) i32 pair is read back from memory and
// decoded as an ipld.List of result values.
func unmarshalResults(mod api.Module, resultTypes []api.ValueType, raw []uint64) ([]ipld.Value, error) {
	if len(resultTypes) == 2 && resultTypes[0] == api.ValueTypeI32 && resultTypes[1] == api.ValueTypeI32 {
		ptr := api.DecodeI32(raw[0])
		length := api.DecodeI32(raw[1])
		buf, ok := mod.Memory().Read(uint32(ptr), uint32(length))
		if !ok {
			return nil, newError(ErrTypeMismatch, "result buffer out of bounds")
		}
		v, err := ipld.Decode(buf)
		if err != nil {
			return nil, newError(ErrTypeMismatch, "decoding composite result: "+err.Error())
		}
		list, err := ipld.AsList(v)
		if err != nil {
			return nil, newError(ErrTypeMismatch, "composite result must encode a list")
		}
		return list, nil
	}

	out := make([]ipld.Value, len(resultTypes))
	for i, t := range resultTypes {
		out[i] = unmarshalScalar(raw[i], t)
	}
	return out, nil
}

func allScalar(args []ipld.Value) bool {
	for _, a := range args {
		if !isScalar(a) {
			return false
		}
	}
	return true
}

// writeToGuestMemory allocates len(b) bytes via the module's required
// homestar_alloc export and copies b into the returned region.
func writeToGuestMemory(ctx context.Context, mod api.Module, b []byte) (uint32, error) {
	alloc := mod.ExportedFunction(allocExportName)
	if alloc == nil {
		return 0, newError(ErrFunctionMissing, "module has composite arguments but no "+allocExportName+" export")
	}
	results, err := alloc.Call(ctx, uint64(len(b)))
	if err != nil {
		return 0, newError(ErrTrap, "homestar_alloc failed: "+err.Error())
	}
	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, b) {
		return 0, newError(ErrTypeMismatch, "alloc returned an out-of-bounds pointer")
	}
	return ptr, nil
}

// Scalar args/results (int, float, bool) pass directly through wazero's
// typed value slots. Composite values (string, bytes, list, map, link)
// cross the boundary as a single canonically-encoded buffer written into
// the module's linear memory: the host calls the module's required
// "homestar_alloc(size) -> ptr" export, writes the bytes, and the target
// export is expected to read (ptr, len) and return its own (ptr, len)
// pair pointing at an ipld.Encode'd result list.

const allocExportName = "homestar_alloc"

// marshalScalar converts a single data-model value to a wazero api.ValueType
// and its encoded uint64 slot, or ok=false if v isn't a scalar.
func marshalScalar(v ipld.Value, want api.ValueType) (uint64, bool, error) {
	switch want {
	case api.ValueTypeI32:
		switch t := v.(type) {
		case bool:
			if t {
				return 1, true, nil
			}
			return 0, true, nil
		case int64:
			if t < math.MinInt32 || t > math.MaxInt32 {
				return 0, false, newError(ErrTypeMismatch, "int64 value out of i32 range")
			}
			return api.EncodeI32(int32(t)), true, nil
		}
	case api.ValueTypeI64:
		if t, ok := v.(int64); ok {
			return api.EncodeI64(t), true, nil
		}
	case api.ValueTypeF32:
		if t, ok := v.(float64); ok {
			return api.EncodeF32(float32(t)), true, nil
		}
	case api.ValueTypeF64:
		if t, ok := v.(float64); ok {
			return api.EncodeF64(t), true, nil
		}
	}
	return 0, false, nil
}

// unmarshalScalar converts a wazero result slot back to a data-model value.
func unmarshalScalar(raw uint64, got api.ValueType) ipld.Value {
	switch got {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(raw))
	case api.ValueTypeI64:
		return api.DecodeI64(raw)
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	default:
		return nil
	}
}

func isScalar(v ipld.Value) bool {
	switch v.(type) {
	case bool, int64, float64:
		return true
	default:
		return false
	}
}
