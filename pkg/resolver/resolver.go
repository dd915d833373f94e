package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// ReceiptSource is the durable receipt store (pkg/receiptstore), named
// here by the narrow shape resolution needs.
type ReceiptSource interface {
	GetByInstruction(ctx context.Context, instructionFingerprint string) (workflow.Receipt, bool, error)
	Put(ctx context.Context, receipt workflow.Receipt) error
}

// PeerSource is the peer coordinator (pkg/p2p), named here by the
// narrow shape resolution needs: a single DHT lookup for a receipt
// tagged by instruction fingerprint.
type PeerSource interface {
	FetchReceipt(ctx context.Context, instructionFingerprint string) (workflow.Receipt, bool, error)
}

// Resolver resolves an Instruction's Input against the ordered fallback
// chain: link map, external resource table, receipt store, peer lookup.
type Resolver struct {
	links       *LinkMap
	resources   *ResourceTable
	receipts    ReceiptSource
	peer        PeerSource
	peerTimeout time.Duration
}

// New builds a Resolver. peer may be nil (no network fallback);
// peerTimeout bounds how long the peer lookup source is given before
// giving up as ResolverTimeout.
func New(links *LinkMap, resources *ResourceTable, receipts ReceiptSource, peer PeerSource, peerTimeout time.Duration) *Resolver {
	return &Resolver{links: links, resources: resources, receipts: receipts, peer: peer, peerTimeout: peerTimeout}
}

// ResolveInput walks input, replacing every deferred reference it finds
// with its resolved literal value, and returns the fully-bound tree.
func (r *Resolver) ResolveInput(ctx context.Context, input workflow.Input) (workflow.Input, error) {
	return r.resolveValue(ctx, input)
}

func (r *Resolver) resolveValue(ctx context.Context, v ipld.Value) (ipld.Value, error) {
	switch t := v.(type) {
	case ipld.Map:
		if await, ok := workflow.AsAwait(t); ok {
			return r.resolveAwait(ctx, await)
		}
		out := make(ipld.Map, len(t))
		for k, elem := range t {
			resolved, err := r.resolveValue(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case ipld.List:
		out := make(ipld.List, len(t))
		for i, elem := range t {
			resolved, err := r.resolveValue(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveAwait resolves one deferred reference through the fallback
// chain and applies its branch selector.
func (r *Resolver) resolveAwait(ctx context.Context, await workflow.Await) (ipld.Value, error) {
	fp := await.Instruction.Fingerprint()
	fpStr := fp.String()

	result, found, err := r.lookup(ctx, fp, fpStr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(ErrUnresolvedFingerprint, fpStr, "exhausted link map, resource table, receipt store, and peer lookup")
	}

	switch await.Result {
	case workflow.OKBranch:
		if !result.IsOK() {
			return nil, newError(ErrBranchMismatch, fpStr, "awaited ok branch but result is error")
		}
	case workflow.ErrBranch:
		if !result.IsError() {
			return nil, newError(ErrBranchMismatch, fpStr, "awaited error branch but result is ok")
		}
	case workflow.PtrBranch:
		// "any": no tag check, return the inner value regardless.
	}
	return result.Value, nil
}

// lookup walks the four resolution sources in order, populating the
// link map (and, for the peer source, the receipt store too) as it
// goes so repeat lookups within the same workflow short-circuit.
func (r *Resolver) lookup(ctx context.Context, fp ipld.Fingerprint, fpStr string) (workflow.InstructionResult, bool, error) {
	if result, ok := r.links.Get(fpStr); ok {
		return result, true, nil
	}

	if r.resources != nil {
		if b, ok := r.resources.Get(workflow.NewResourceFingerprint(fp)); ok {
			result := workflow.Just(append([]byte(nil), b...))
			r.links.Insert(fpStr, result)
			return result, true, nil
		}
	}

	if r.receipts != nil {
		receipt, ok, err := r.receipts.GetByInstruction(ctx, fpStr)
		if err != nil {
			return workflow.InstructionResult{}, false, err
		}
		if ok {
			r.links.Insert(fpStr, receipt.Out)
			return receipt.Out, true, nil
		}
	}

	if r.peer != nil {
		peerCtx := ctx
		var cancel context.CancelFunc
		if r.peerTimeout > 0 {
			peerCtx, cancel = context.WithTimeout(ctx, r.peerTimeout)
			defer cancel()
		}
		receipt, ok, err := r.peer.FetchReceipt(peerCtx, fpStr)
		if err != nil {
			if errors.Is(peerCtx.Err(), context.DeadlineExceeded) {
				return workflow.InstructionResult{}, false, newError(ErrResolverTimeout, fpStr, "peer lookup timed out")
			}
			return workflow.InstructionResult{}, false, err
		}
		if ok {
			if r.receipts != nil {
				if putErr := r.receipts.Put(ctx, receipt); putErr != nil {
					return workflow.InstructionResult{}, false, putErr
				}
			}
			r.links.Insert(fpStr, receipt.Out)
			return receipt.Out, true, nil
		}
	}

	return workflow.InstructionResult{}, false, nil
}
