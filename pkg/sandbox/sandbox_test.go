package sandbox

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/stretchr/testify/require"
)

func TestCandidateNamesOrder(t *testing.T) {
	require.Equal(t, []string{"add_one", "add-one"}, candidateNames("add_one"))
	require.Equal(t, []string{"add-one", "add_one"}, candidateNames("add-one"))
	require.Equal(t, []string{"addone"}, candidateNames("addone"))
}

func TestMemoryPagesMinimumOne(t *testing.T) {
	require.Equal(t, uint32(1), memoryPages(0))
	require.Equal(t, uint32(1), memoryPages(1000))
	require.Equal(t, uint32(65536), memoryPages(1<<40))
}

func TestIsTrapClassification(t *testing.T) {
	require.True(t, IsTrap(&Error{Code: ErrOutOfFuel}))
	require.True(t, IsTrap(&Error{Code: ErrTrap}))
	require.False(t, IsTrap(&Error{Code: ErrModuleInvalid}))
	require.False(t, IsTrap(&Error{Code: ErrFunctionMissing}))
}

func TestFuelStateExhaustion(t *testing.T) {
	fs := &fuelState{remaining: 10}
	ctx := withFuelState(context.Background(), fs)
	got := fuelStateFrom(ctx)
	require.Same(t, fs, got)

	if got.remaining < 5 {
		got.exhausted = true
	} else {
		got.remaining -= 5
	}
	require.Equal(t, uint64(5), fs.remaining)
	require.False(t, fs.exhausted)
}

// The modules below are raw WebAssembly binaries, hand-assembled byte by
// byte rather than compiled from source: nothing in this tree's build
// carries a wat2wasm/TinyGo toolchain, so a real (not faked) export for
// WasmSandbox.Invoke to call has to be written out section by section.
// Each builder documents its layout so the bytes can be checked by
// inspection against the WebAssembly core binary format (sections
// ordered type, import, function, memory, global, export, code; LEB128
// integers; i32.const/i64.const use signed LEB128).

func u32Section(id byte, content []byte) []byte {
	out := []byte{id}
	out = appendULEB(out, uint64(len(content)))
	return append(out, content...)
}

func appendULEB(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
		} else {
			b = append(b, c)
			return b
		}
	}
}

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// addOneWasmModule exports add_one(i32) -> i32 returning its argument
// plus one: the scalar marshal/unmarshal path end to end.
func addOneWasmModule() []byte {
	typeSec := u32Section(1, []byte{
		0x01,             // 1 type
		0x60, 0x01, 0x7f, // func (i32)
		0x01, 0x7f, // -> i32
	})
	funcSec := u32Section(3, []byte{0x01, 0x00}) // 1 func, type 0
	exportSec := u32Section(7, []byte{
		0x01,                                                       // 1 export
		0x07, 'a', 'd', 'd', '_', 'o', 'n', 'e', 0x00, 0x00, // "add_one" func 0
	})
	body := []byte{
		0x00,       // 0 local decls
		0x20, 0x00, // local.get 0
		0x41, 0x01, // i32.const 1
		0x6a, // i32.add
		0x0b, // end
	}
	entry := append(appendULEB(nil, uint64(len(body))), body...)
	codeSec := u32Section(10, append([]byte{0x01}, entry...))

	var out []byte
	out = append(out, wasmHeader...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

// trapNowWasmModule exports trap_now() with a body that unconditionally
// traps via unreachable.
func trapNowWasmModule() []byte {
	typeSec := u32Section(1, []byte{
		0x01,       // 1 type
		0x60, 0x00, // func ()
		0x00, // -> nothing
	})
	funcSec := u32Section(3, []byte{0x01, 0x00})
	exportSec := u32Section(7, []byte{
		0x01,
		0x08, 't', 'r', 'a', 'p', '_', 'n', 'o', 'w', 0x00, 0x00,
	})
	body := []byte{
		0x00, // 0 locals
		0x00, // unreachable
		0x0b, // end
	}
	entry := append(appendULEB(nil, uint64(len(body))), body...)
	codeSec := u32Section(10, append([]byte{0x01}, entry...))

	var out []byte
	out = append(out, wasmHeader...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

// growWasmModule declares a 1-page memory and exports grow(i32) -> i32
// that calls memory.grow directly on its argument, returning wasm's own
// -1-on-failure sentinel when the runtime's page ceiling refuses it.
func growWasmModule() []byte {
	typeSec := u32Section(1, []byte{
		0x01,
		0x60, 0x01, 0x7f,
		0x01, 0x7f,
	})
	funcSec := u32Section(3, []byte{0x01, 0x00})
	memSec := u32Section(5, []byte{
		0x01,       // 1 memory
		0x00, 0x01, // flags=min-only, min=1 page
	})
	exportSec := u32Section(7, []byte{
		0x01,
		0x04, 'g', 'r', 'o', 'w', 0x00, 0x00,
	})
	body := []byte{
		0x00,       // 0 locals
		0x20, 0x00, // local.get 0 (delta pages)
		0x40, 0x00, // memory.grow, memidx 0
		0x0b, // end
	}
	entry := append(appendULEB(nil, uint64(len(body))), body...)
	codeSec := u32Section(10, append([]byte{0x01}, entry...))

	var out []byte
	out = append(out, wasmHeader...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, memSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

// useFuelWasmModule imports homestar.yield(i64) -> i32 and exports
// use_fuel(i64) -> i32 that calls yield with its argument as cost and
// traps if yield reports the fuel budget exhausted.
func useFuelWasmModule() []byte {
	typeSec := u32Section(1, []byte{
		0x01,
		0x60, 0x01, 0x7e, // func (i64)
		0x01, 0x7f, // -> i32
	})
	importSec := u32Section(2, []byte{
		0x01, // 1 import
		0x08, 'h', 'o', 'm', 'e', 's', 't', 'a', 'r', // module "homestar"
		0x05, 'y', 'i', 'e', 'l', 'd', // name "yield"
		0x00, 0x00, // func import, type 0
	})
	funcSec := u32Section(3, []byte{0x01, 0x00}) // func 1 (idx 1, after the imported func 0), type 0
	exportSec := u32Section(7, []byte{
		0x01,
		0x08, 'u', 's', 'e', '_', 'f', 'u', 'e', 'l', 0x00, 0x01, // func idx 1
	})
	body := []byte{
		0x00,       // 0 locals
		0x20, 0x00, // local.get 0 (cost)
		0x10, 0x00, // call 0 (homestar.yield)
		0x04, 0x40, // if (void)
		0x00, //   unreachable
		0x0b, // end (if)
		0x41, 0x00, // i32.const 0
		0x0b, // end (func)
	}
	entry := append(appendULEB(nil, uint64(len(body))), body...)
	codeSec := u32Section(10, append([]byte{0x01}, entry...))

	var out []byte
	out = append(out, wasmHeader...)
	out = append(out, typeSec...)
	out = append(out, importSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

// echoWasmModule exports the required homestar_alloc(i32) -> i32 (always
// returning a fixed offset, since one Invoke call allocates at most once)
// and echo(i32, i32) -> (i32, i32) that hands back the same (ptr, len) it
// was given -- the composite-argument/composite-result ABI round trip.
func echoWasmModule() []byte {
	typeSec := u32Section(1, []byte{
		0x02, // 2 types
		0x60, 0x01, 0x7f, 0x01, 0x7f, // type 0: (i32) -> i32
		0x60, 0x02, 0x7f, 0x7f, 0x02, 0x7f, 0x7f, // type 1: (i32,i32) -> (i32,i32)
	})
	funcSec := u32Section(3, []byte{0x02, 0x00, 0x01}) // func0: type0, func1: type1
	memSec := u32Section(5, []byte{0x01, 0x00, 0x01})  // 1 page, no export needed
	exportSec := u32Section(7, []byte{
		0x02, // 2 exports
		0x0e, 'h', 'o', 'm', 'e', 's', 't', 'a', 'r', '_', 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
		0x04, 'e', 'c', 'h', 'o', 0x00, 0x01,
	})
	allocBody := []byte{
		0x00,       // 0 locals
		0x41, 0xc0, 0x00, // i32.const 64 (signed LEB128)
		0x0b, // end
	}
	echoBody := []byte{
		0x00,       // 0 locals
		0x20, 0x00, // local.get 0 (ptr)
		0x20, 0x01, // local.get 1 (len)
		0x0b, // end
	}
	allocEntry := append(appendULEB(nil, uint64(len(allocBody))), allocBody...)
	echoEntry := append(appendULEB(nil, uint64(len(echoBody))), echoBody...)
	codeContent := append([]byte{0x02}, allocEntry...)
	codeContent = append(codeContent, echoEntry...)
	codeSec := u32Section(10, codeContent)

	var out []byte
	out = append(out, wasmHeader...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, memSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

func newTestSandbox(t *testing.T) *WasmSandbox {
	t.Helper()
	sb, err := NewWasmSandbox(context.Background(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close(context.Background()) })
	return sb
}

// TestInvokeScalarAddOne drives the scalar-argument/scalar-result path
// through a real wazero instantiation: two independent invocations of
// the same compiled module with different inputs, matching Scenario A's
// "both execute, each produces its own output" shape.
func TestInvokeScalarAddOne(t *testing.T) {
	sb := newTestSandbox(t)
	module := addOneWasmModule()
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000}

	run1, err := sb.Invoke(context.Background(), module, "add_one", []ipld.Value{int64(1)}, limits)
	require.NoError(t, err)
	require.False(t, run1.Trapped)
	require.Equal(t, []ipld.Value{int64(2)}, run1.Values)

	run2, err := sb.Invoke(context.Background(), module, "add_one", []ipld.Value{int64(10)}, limits)
	require.NoError(t, err)
	require.False(t, run2.Trapped)
	require.Equal(t, []ipld.Value{int64(11)}, run2.Values)
}

// TestInvokeUnreachableTraps matches Scenario E's failure leg: a module
// that traps surfaces as RunResult.Trapped, not an error.
func TestInvokeUnreachableTraps(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000}

	run, err := sb.Invoke(context.Background(), trapNowWasmModule(), "trap_now", nil, limits)
	require.NoError(t, err)
	require.True(t, run.Trapped)
	require.Contains(t, run.TrapReason, string(ErrTrap))
}

// TestInvokeFuelExhaustionTraps matches Scenario E's mechanism (fuel
// exhausted mid-execution): use_fuel calls homestar.yield with a cost
// greater than the configured budget and self-traps when told the
// budget ran out.
func TestInvokeFuelExhaustionTraps(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 5, MemoryBytes: 65536, TimeMillis: 5000}

	run, err := sb.Invoke(context.Background(), useFuelWasmModule(), "use_fuel", []ipld.Value{int64(100)}, limits)
	require.NoError(t, err)
	require.True(t, run.Trapped)
	require.Equal(t, string(ErrOutOfFuel), run.TrapReason)
}

// TestInvokeFuelSufficientSucceeds is the non-trapping counterpart: the
// same module with a cost inside the budget returns normally.
func TestInvokeFuelSufficientSucceeds(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000}

	run, err := sb.Invoke(context.Background(), useFuelWasmModule(), "use_fuel", []ipld.Value{int64(100)}, limits)
	require.NoError(t, err)
	require.False(t, run.Trapped)
	require.Equal(t, []ipld.Value{int64(0)}, run.Values)
}

// TestInvokeMemoryGrowDeniedAtCeiling matches Scenario F: a task whose
// memory_bytes ceiling is exactly its module's declared starting size
// attempts to grow, and the per-ceiling runtime refuses it -- proof the
// cap is enforced during execution, not just checked at instantiation.
func TestInvokeMemoryGrowDeniedAtCeiling(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000} // 1 page, matching the module's declared minimum

	run, err := sb.Invoke(context.Background(), growWasmModule(), "grow", []ipld.Value{int64(1)}, limits)
	require.NoError(t, err)
	require.False(t, run.Trapped, "memory.grow failing is a normal -1 return, not a trap")
	require.Equal(t, []ipld.Value{int64(-1)}, run.Values)
}

// TestInvokeMemoryGrowWithinCeilingSucceeds is the non-denied
// counterpart: the same module with enough headroom grows successfully
// and returns the previous page count.
func TestInvokeMemoryGrowWithinCeilingSucceeds(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 3 * 65536, TimeMillis: 5000} // 3-page ceiling, module starts at 1

	run, err := sb.Invoke(context.Background(), growWasmModule(), "grow", []ipld.Value{int64(1)}, limits)
	require.NoError(t, err)
	require.False(t, run.Trapped)
	require.Equal(t, []ipld.Value{int64(1)}, run.Values, "memory.grow returns the previous page count on success")
}

// TestInvokeCompositeRoundTrip exercises the homestar_alloc/(ptr,len)
// ABI for arguments that aren't plain scalars: echo hands back the same
// bytes the host wrote, proving the encode/alloc/write/call/read/decode
// chain preserves the argument list.
func TestInvokeCompositeRoundTrip(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000}

	args := []ipld.Value{"hello", int64(42)}
	run, err := sb.Invoke(context.Background(), echoWasmModule(), "echo", args, limits)
	require.NoError(t, err)
	require.False(t, run.Trapped)
	require.Equal(t, args, run.Values)
}

// TestInvokeMissingExportErrors confirms an unresolvable export is a
// host-side error, not a trap.
func TestInvokeMissingExportErrors(t *testing.T) {
	sb := newTestSandbox(t)
	limits := Limits{Fuel: 1_000_000, MemoryBytes: 65536, TimeMillis: 5000}

	_, err := sb.Invoke(context.Background(), addOneWasmModule(), "nope", []ipld.Value{int64(1)}, limits)
	require.Error(t, err)
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, ErrFunctionMissing, sErr.Code)
}
