// Package sandbox executes a single Instruction's Wasm module inside a
// deny-by-default wazero runtime, enforcing fuel, memory, and wall-clock
// bounds and marshalling between the canonical data model and the
// module's typed exports.
package sandbox

import (
	"context"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Limits are the effective resource bounds for one invocation, resolved
// from a workflow.TaskConfig by the caller (pkg/worker) so this package
// doesn't depend on pkg/workflow.
type Limits struct {
	Fuel        uint64
	MemoryBytes uint64
	TimeMillis  uint64
}

// Sandbox isolates execution of Wasm modules. Implementations must
// guarantee: no filesystem, no network, no ambient environment access,
// and that Close releases all runtime resources.
type Sandbox interface {
	// Invoke compiles (or reuses a cached compilation of) module, calls the
	// named export with args, and returns its typed results as data-model
	// values. A trap, including fuel, memory or deadline exhaustion,
	// surfaces as RunResult.Trapped, not as an error — only host-side
	// failures (bad module, missing function, bad types) return a non-nil
	// error.
	Invoke(ctx context.Context, module []byte, export string, args []ipld.Value, limits Limits) (RunResult, error)

	// Close shuts down the runtime, freeing all compiled modules.
	Close(ctx context.Context) error
}

// RunResult is the outcome of one Invoke call.
type RunResult struct {
	// Trapped is true if the module ran but faulted (trap, fuel exhaustion,
	// memory growth past the ceiling, or deadline). TrapReason explains why.
	Trapped    bool
	TrapReason string

	// Values holds the typed results on a non-trapped return.
	Values []ipld.Value

	// Stdout/Stderr capture the module's captured output streams, useful
	// for diagnostics even on a trapped run.
	Stdout []byte
	Stderr []byte
}
