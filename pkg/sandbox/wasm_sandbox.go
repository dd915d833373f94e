package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmSandbox runs Instructions in a deny-by-default wazero runtime: no
// filesystem, no network, no ambient environment, no host randomness or
// high-resolution timers beyond what the "homestar" host module exposes.
//
// A task's memory ceiling is a hard per-instance wazero.RuntimeConfig
// setting (WithMemoryLimitPages), not a post-hoc check, so wazero itself
// refuses any memory.grow that would exceed config.memory_bytes the
// instant the guest attempts it. Since the ceiling is fixed per runtime
// but tasks can declare different ceilings, WasmSandbox keeps one
// wazero.Runtime per distinct page ceiling actually requested, built
// lazily and cached for the sandbox's lifetime.
type WasmSandbox struct {
	logger *slog.Logger

	mu       sync.Mutex
	runtimes map[uint32]*limitedRuntime
	closed   bool
}

// limitedRuntime pairs a wazero.Runtime built with a fixed memory page
// ceiling with the compiled-module cache scoped to it -- a
// wazero.CompiledModule is only valid against the runtime that compiled
// it, so the cache can't be shared across ceilings.
type limitedRuntime struct {
	runtime wazero.Runtime
	mu      sync.Mutex
	cache   map[[32]byte]wazero.CompiledModule
}

// NewWasmSandbox constructs a sandbox. It eagerly builds the runtime for
// the largest page ceiling (4 GiB, the wasm32 maximum and this module's
// unconfigured-task default) so a broken host module wiring fails at
// construction, not on the first Invoke; that runtime is reused by every
// task that doesn't declare a tighter memory_bytes.
func NewWasmSandbox(ctx context.Context, logger *slog.Logger) (*WasmSandbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &WasmSandbox{
		logger:   logger,
		runtimes: make(map[uint32]*limitedRuntime),
	}
	if _, err := s.runtimeFor(ctx, 65536); err != nil {
		return nil, fmt.Errorf("sandbox: building host module: %w", err)
	}
	return s, nil
}

// runtimeFor returns the cached runtime for pages, building it (with its
// own memory ceiling and host module) on first use.
func (s *WasmSandbox) runtimeFor(ctx context.Context, pages uint32) (*limitedRuntime, error) {
	s.mu.Lock()
	if lr, ok := s.runtimes[pages]; ok {
		s.mu.Unlock()
		return lr, nil
	}
	s.mu.Unlock()

	rConfig := wazero.NewRuntimeConfig().WithMemoryLimitPages(pages)
	runtime := wazero.NewRuntimeWithConfig(ctx, rConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiating WASI: %w", err)
	}
	if err := buildHostModule(ctx, runtime, s.logger); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	lr := &limitedRuntime{runtime: runtime, cache: make(map[[32]byte]wazero.CompiledModule)}

	s.mu.Lock()
	if existing, ok := s.runtimes[pages]; ok {
		s.mu.Unlock()
		_ = runtime.Close(ctx)
		return existing, nil
	}
	s.runtimes[pages] = lr
	s.mu.Unlock()
	return lr, nil
}

func (s *WasmSandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, lr := range s.runtimes {
		if err := lr.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// candidateNames produces the function-name lookup order: exact, then
// kebab-case, then snake_case.
func candidateNames(export string) []string {
	kebab := strings.ReplaceAll(export, "_", "-")
	snake := strings.ReplaceAll(export, "-", "_")
	seen := map[string]bool{}
	var out []string
	for _, n := range []string{export, kebab, snake} {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func (lr *limitedRuntime) compile(ctx context.Context, module []byte, key [32]byte) (wazero.CompiledModule, error) {
	lr.mu.Lock()
	if cached, ok := lr.cache[key]; ok {
		lr.mu.Unlock()
		return cached, nil
	}
	lr.mu.Unlock()

	compiled, err := lr.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, newError(ErrModuleInvalid, err.Error())
	}

	lr.mu.Lock()
	lr.cache[key] = compiled
	lr.mu.Unlock()
	return compiled, nil
}

// Invoke compiles (or reuses) module against the runtime matching
// limits' memory ceiling, instantiates it with wall-clock and fuel
// limits applied, locates export by candidateNames, marshals args, and
// runs it to completion or to a resource limit.
func (s *WasmSandbox) Invoke(ctx context.Context, module []byte, export string, args []ipld.Value, limits Limits) (RunResult, error) {
	pages := memoryPages(limits.MemoryBytes)
	lr, err := s.runtimeFor(ctx, pages)
	if err != nil {
		return RunResult{}, newError(ErrModuleInvalid, "provisioning memory-limited runtime: "+err.Error())
	}

	key := moduleKey(module)
	compiled, err := lr.compile(ctx, module, key)
	if err != nil {
		return RunResult{}, err
	}

	var fn api.FunctionDefinition
	for _, name := range candidateNames(export) {
		for _, def := range compiled.ExportedFunctions() {
			if def.Name() == name {
				fn = def
				break
			}
		}
		if fn != nil {
			break
		}
	}
	if fn == nil {
		return RunResult{}, newError(ErrFunctionMissing, "no export matched "+export)
	}

	if limits.TimeMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(limits.TimeMillis)*time.Millisecond)
		defer cancel()
	}

	fs := &fuelState{remaining: limits.Fuel}
	ctx = withFuelState(ctx, fs)
	ctx = withClockState(ctx, &clockState{start: time.Now()})

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("homestar-%x", key)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, instErr := lr.runtime.InstantiateModule(ctx, compiled, modCfg)
	if instErr != nil {
		return s.classifyStartupError(instErr, ctx, stdout.Bytes(), stderr.Bytes())
	}
	defer func() { _ = mod.Close(ctx) }()

	callArgs, marshalErr := marshalArgs(ctx, mod, fn.ParamTypes(), args)
	if marshalErr != nil {
		return RunResult{}, marshalErr
	}

	wazFn := mod.ExportedFunction(fn.Name())
	results, callErr := wazFn.Call(ctx, callArgs...)
	if callErr != nil {
		return s.classifyCallError(callErr, fs, ctx, stdout.Bytes(), stderr.Bytes())
	}

	values, unmarshalErr := unmarshalResults(mod, fn.ResultTypes(), results)
	if unmarshalErr != nil {
		return RunResult{}, unmarshalErr
	}

	return RunResult{Values: values, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// classifyStartupError maps an InstantiateModule failure to a trap, not a
// host error, when the cause is the memory ceiling this invocation was
// given (the module's declared minimum memory already exceeds it) or the
// wall-clock deadline expiring during instantiation (e.g. a large data
// section to copy).
func (s *WasmSandbox) classifyStartupError(err error, ctx context.Context, stdout, stderr []byte) (RunResult, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return RunResult{Trapped: true, TrapReason: string(ErrDeadline), Stdout: stdout, Stderr: stderr}, nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "memory") {
		return RunResult{Trapped: true, TrapReason: string(ErrOutOfMemory), Stdout: stdout, Stderr: stderr}, nil
	}
	return RunResult{}, newError(ErrModuleInvalid, "instantiation failed: "+err.Error())
}

func (s *WasmSandbox) classifyCallError(err error, fs *fuelState, ctx context.Context, stdout, stderr []byte) (RunResult, error) {
	switch {
	case fs.exhausted:
		return RunResult{Trapped: true, TrapReason: string(ErrOutOfFuel), Stdout: stdout, Stderr: stderr}, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return RunResult{Trapped: true, TrapReason: string(ErrDeadline), Stdout: stdout, Stderr: stderr}, nil
	case strings.Contains(strings.ToLower(err.Error()), "out of memory") || strings.Contains(strings.ToLower(err.Error()), "memory.grow"):
		return RunResult{Trapped: true, TrapReason: string(ErrOutOfMemory), Stdout: stdout, Stderr: stderr}, nil
	default:
		return RunResult{Trapped: true, TrapReason: fmt.Sprintf("%s: %s", ErrTrap, err.Error()), Stdout: stdout, Stderr: stderr}, nil
	}
}

func memoryPages(memoryBytes uint64) uint32 {
	const pageSize = 64 * 1024
	if memoryBytes == 0 {
		return 1
	}
	pages := memoryBytes / pageSize
	if pages == 0 {
		pages = 1
	}
	if pages > 65536 {
		pages = 65536
	}
	return uint32(pages)
}

func moduleKey(module []byte) [32]byte {
	return sha256Sum(module)
}
