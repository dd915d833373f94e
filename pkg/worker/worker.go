// Package worker drives one workflow from compiled graph to stored
// receipts: it compiles the workflow (pkg/scheduler), prefetches
// resources and replays already-completed instructions, then walks the
// resulting batches running each batch's tasks in parallel inside a
// sandbox (pkg/sandbox), resolving each task's input via pkg/resolver
// and recording the outcome as a Receipt in pkg/receiptstore.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/homestar/pkg/blobstore"
	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/resolver"
	"github.com/Mindburn-Labs/homestar/pkg/sandbox"
	"github.com/Mindburn-Labs/homestar/pkg/scheduler"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// Worker runs a single Workflow to completion. It is not reusable across
// workflows: build one per Run.
type Worker struct {
	wf  workflow.Workflow
	cfg Config

	bus      *events.Bus
	sandbox  sandbox.Sandbox
	receipts receiptstore.Store
	local    blobstore.Store
	network  NetworkFetcher
	peer     resolver.PeerSource
	gossip   Gossip

	receiptAdapter *receiptStoreAdapter
}

// New builds a Worker. bus, local, network, peer, and gossip may all be
// nil: a nil bus gets a private one, a nil local/network/peer/gossip
// simply means that fallback path is unavailable.
func New(wf workflow.Workflow, cfg Config, bus *events.Bus, sb sandbox.Sandbox, receipts receiptstore.Store, local blobstore.Store, network NetworkFetcher, peer resolver.PeerSource, gossip Gossip) *Worker {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Worker{
		wf:       wf,
		cfg:      cfg.withDefaults(),
		bus:      bus,
		sandbox:  sb,
		receipts: receipts,
		local:    local,
		network:  network,
		peer:     peer,
		gossip:   gossip,
	}
}

// Result is the outcome of a completed Run: every receipt produced by a
// task that actually executed in this call (replayed tasks are not
// included, since nothing ran).
type Result struct {
	Receipts map[string]workflow.Receipt
}

// Run compiles and executes the workflow to completion. It returns an
// error only when the run itself had to abort -- a compile rejection, a
// receipt store fault, or a sandbox host-side failure (an Invoke error
// rather than a trap). A single task failing (trap, branch mismatch,
// unresolved dependency) is recorded as an error Receipt and does not
// abort the run.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	if w.cfg.WorkflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.WorkflowTimeout)
		defer cancel()
	}

	// 1. Compile the workflow into batches plus the external resources
	// it references but doesn't itself produce.
	graph, instructions, fpStrs, err := w.compile()
	if err != nil {
		w.emitError(err)
		return Result{}, err
	}

	// 2. Fetch external resources concurrently, local cache first,
	// falling back to the peer network; populate the immutable
	// resource table the resolver consults.
	resourceBytes := w.prefetchExternalResources(ctx, graph.ExternalResources)
	resources := resolver.NewResourceTable(resourceBytes)

	links := resolver.NewLinkMap()
	w.receiptAdapter = newReceiptStoreAdapter(w.receipts)
	res := resolver.New(links, resources, w.receiptAdapter, w.peer, w.cfg.PeerLookupTimeout)

	// 3. Replay: batch-lookup every instruction fingerprint against the
	// receipt store; anything already there is inserted into the link
	// map and reported as replayed rather than re-run.
	if err := w.replayCompleted(ctx, fpStrs, links); err != nil {
		w.emitError(err)
		return Result{}, err
	}

	// 4. Walk batches in compiled order; within a batch, tasks run in
	// parallel.
	out := make(map[string]workflow.Receipt)
	var mu sync.Mutex
	for _, batch := range graph.Batches {
		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range batch {
			idx := idx
			g.Go(func() error {
				receipt, ran, err := w.runTask(gctx, res, links, fpStrs[idx], instructions[idx], w.wf.Tasks[idx])
				if err != nil {
					return err
				}
				if ran {
					mu.Lock()
					out[fpStrs[idx]] = receipt
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			w.emitError(err)
			return Result{Receipts: out}, err
		}
	}

	return Result{Receipts: out}, nil
}

// compile runs the scheduler and recomputes, alongside it, the per-task
// instruction and fingerprint that indexes into graph.Batches -- the
// scheduler validates the same shape internally but doesn't hand its
// intermediate instructions back out.
func (w *Worker) compile() (scheduler.ExecutionGraph, []workflow.Instruction, []string, error) {
	graph, err := scheduler.Compile(w.wf)
	if err != nil {
		return scheduler.ExecutionGraph{}, nil, nil, newError(ErrCompileFailed, err.Error())
	}

	instructions := make([]workflow.Instruction, len(w.wf.Tasks))
	fpStrs := make([]string, len(w.wf.Tasks))
	for i, t := range w.wf.Tasks {
		instr, ok := t.Run.Instruction()
		if !ok {
			return scheduler.ExecutionGraph{}, nil, nil, newError(ErrCompileFailed, "task run is a pointer, not an inlined instruction")
		}
		fp, err := instr.Fingerprint()
		if err != nil {
			return scheduler.ExecutionGraph{}, nil, nil, newError(ErrCompileFailed, err.Error())
		}
		instructions[i] = instr
		fpStrs[i] = fp.String()
	}
	return graph, instructions, fpStrs, nil
}

func (w *Worker) replayCompleted(ctx context.Context, fpStrs []string, links *resolver.LinkMap) error {
	existing, err := w.receipts.GetMany(ctx, fpStrs)
	if err != nil {
		return newError(ErrStoreFailure, err.Error())
	}
	for _, fpStr := range fpStrs {
		stored, ok := existing[fpStr]
		if !ok {
			continue
		}
		var receipt workflow.Receipt
		if err := json.Unmarshal(stored.JSON, &receipt); err != nil {
			return newError(ErrStoreFailure, "decoding replayed receipt: "+err.Error())
		}
		links.Insert(fpStr, receipt.Out)
		w.emit(events.WorkflowReplayed, map[string]string{"instruction": fpStr})
	}
	return nil
}

// runTask resolves one task's input, invokes its sandbox, and stores the
// resulting receipt. The returned bool is false when the task was
// already satisfied by replay (nothing ran, no receipt to report); a
// non-nil error means the run itself must abort.
func (w *Worker) runTask(ctx context.Context, res *resolver.Resolver, links *resolver.LinkMap, fpStr string, instr workflow.Instruction, task workflow.Task) (workflow.Receipt, bool, error) {
	if _, ok := links.Get(fpStr); ok {
		return workflow.Receipt{}, false, nil
	}

	ran := workflow.NewPointer(mustParseFingerprint(fpStr))

	resolvedInput, err := w.resolveWithRetry(ctx, res, instr.Input)
	if err != nil {
		var rerr *resolver.Error
		if errors.As(err, &rerr) {
			return w.finishFailed(ctx, ran, fpStr, task, links, ipld.Map{"reason": rerr.Error()}, rerr.Error())
		}
		return workflow.Receipt{}, false, err
	}

	module, err := w.fetchResourceRetrying(ctx, instr.Resource)
	if err != nil {
		reason := "fetching resource " + instr.Resource.String() + ": " + err.Error()
		return w.finishFailed(ctx, ran, fpStr, task, links, ipld.Map{"reason": reason}, reason)
	}

	limits := resolvedLimits(task.Config)
	run, err := w.sandbox.Invoke(ctx, module, instr.Ability.String(), toArgs(resolvedInput), limits)
	if err != nil {
		return workflow.Receipt{}, false, err
	}

	if run.Trapped {
		return w.finishFailed(ctx, ran, fpStr, task, links, ipld.Map{"trap": run.TrapReason}, run.TrapReason)
	}
	return w.finishOK(ctx, ran, fpStr, task, links, packResult(run.Values))
}

func (w *Worker) finishOK(ctx context.Context, ran workflow.Pointer, fpStr string, task workflow.Task, links *resolver.LinkMap, result workflow.InstructionResult) (workflow.Receipt, bool, error) {
	receipt := workflow.NewReceipt(ran, result, nil, task.Proof)
	if err := w.storeAndPublish(ctx, receipt); err != nil {
		return workflow.Receipt{}, false, err
	}
	links.Insert(fpStr, receipt.Out)
	w.emit(events.WorkflowCompleted, map[string]string{"instruction": fpStr})
	return receipt, true, nil
}

// finishFailed records a task's failure as an error Receipt. payload is
// the shape stored in the receipt's Out.Value -- {"trap": ...} for a
// sandbox trap, {"reason": ...} for a branch mismatch, unresolved
// dependency, or resource-fetch failure. reason is the human-readable
// message used for the WorkflowFailed event and logging.
func (w *Worker) finishFailed(ctx context.Context, ran workflow.Pointer, fpStr string, task workflow.Task, links *resolver.LinkMap, payload ipld.Map, reason string) (workflow.Receipt, bool, error) {
	receipt := workflow.NewReceipt(ran, workflow.ErrResult(payload), nil, task.Proof)
	if err := w.storeAndPublish(ctx, receipt); err != nil {
		return workflow.Receipt{}, false, err
	}
	links.Insert(fpStr, receipt.Out)
	w.emit(events.WorkflowFailed, map[string]string{"instruction": fpStr, "reason": reason})
	return receipt, true, nil
}

func (w *Worker) storeAndPublish(ctx context.Context, receipt workflow.Receipt) error {
	if err := w.receiptAdapter.Put(ctx, receipt); err != nil {
		return err
	}
	if w.gossip != nil {
		_ = w.gossip.PublishReceipt(ctx, receipt)
	}
	return nil
}

func (w *Worker) resolveWithRetry(ctx context.Context, res *resolver.Resolver, input workflow.Input) (workflow.Input, error) {
	var result workflow.Input
	err := retryWithBackoff(ctx, w.cfg.Retries, w.cfg.RetryBaseDelay, isRetryableResolveErr, func() error {
		v, err := res.ResolveInput(ctx, input)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var rerr *resolver.Error
		if errors.As(err, &rerr) && rerr.Code == resolver.ErrResolverTimeout {
			return nil, &resolver.Error{Code: resolver.ErrUnresolvedFingerprint, Fingerprint: rerr.Fingerprint, Msg: "exhausted retries waiting on peer lookup"}
		}
		return nil, err
	}
	return result, nil
}

func isRetryableResolveErr(err error) bool {
	var rerr *resolver.Error
	return errors.As(err, &rerr) && rerr.Code == resolver.ErrResolverTimeout
}

func (w *Worker) emit(eventType string, data interface{}) {
	w.bus.Publish(events.Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()})
}

func (w *Worker) emitError(err error) {
	w.emit(events.WorkflowError, map[string]string{"error": err.Error()})
}

func toArgs(v ipld.Value) []ipld.Value {
	if list, ok := v.(ipld.List); ok {
		return []ipld.Value(list)
	}
	if v == nil {
		return nil
	}
	return []ipld.Value{v}
}

func packResult(values []ipld.Value) workflow.InstructionResult {
	switch len(values) {
	case 0:
		return workflow.OK(nil)
	case 1:
		return workflow.OK(values[0])
	default:
		return workflow.OK(ipld.List(values))
	}
}

func resolvedLimits(c workflow.TaskConfig) sandbox.Limits {
	fuel, mem, ms := c.Resolved()
	return sandbox.Limits{Fuel: fuel, MemoryBytes: mem, TimeMillis: ms}
}

// mustParseFingerprint rebuilds the Fingerprint behind a string already
// produced by Fingerprint.String() earlier in this same Run call.
func mustParseFingerprint(s string) ipld.Fingerprint {
	fp, err := ipld.ParseFingerprint(s)
	if err != nil {
		panic("worker: re-parsing an already-valid fingerprint: " + err.Error())
	}
	return fp
}
