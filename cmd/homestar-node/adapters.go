package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// receiptSink satisfies pkg/p2p's ReceiptSink by translating a
// gossip-received workflow.Receipt into the JSON-blob shape
// receiptstore.Store persists, the same translation pkg/worker's own
// (unexported) receiptStoreAdapter performs for locally produced
// receipts.
type receiptSink struct {
	store receiptstore.Store
}

func newReceiptSink(store receiptstore.Store) *receiptSink {
	return &receiptSink{store: store}
}

func (s *receiptSink) Put(ctx context.Context, receipt workflow.Receipt) error {
	b, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("homestar-node: encode gossip receipt: %w", err)
	}
	receiptFp, err := receipt.Fingerprint()
	if err != nil {
		return fmt.Errorf("homestar-node: fingerprint gossip receipt: %w", err)
	}
	_, err = s.store.Put(ctx, receiptstore.StoredReceipt{
		InstructionFingerprint: receipt.Ran.Fingerprint().String(),
		ReceiptFingerprint:     receiptFp.String(),
		JSON:                   b,
	})
	return err
}

// workflowInfoTracker satisfies pkg/p2p's WorkflowInfoSource: it keeps
// a best-effort count of completed/replayed tasks per workflow by
// subscribing to the event bus, so a peer's workflow-info request gets
// real progress instead of a static snapshot. This is the restored
// workflow:info record from the original runtime's network notification
// layer (event_handler/notification/network/record.rs), tracked here
// rather than in pkg/worker since it is a p2p-facing concern, not
// something a local, non-networked `homestar run` needs to pay for.
type workflowInfoTracker struct {
	mu    sync.RWMutex
	infos map[string]workflow.WorkflowInfo
}

func newWorkflowInfoTracker(bus *events.Bus) *workflowInfoTracker {
	t := &workflowInfoTracker{infos: make(map[string]workflow.WorkflowInfo)}
	sub := bus.Subscribe()
	go t.consume(sub.Events)
	return t
}

func (t *workflowInfoTracker) consume(ch <-chan events.Event) {
	for evt := range ch {
		switch evt.Type {
		case events.WorkflowCompleted, events.WorkflowReplayed:
			data, ok := evt.Data.(map[string]string)
			if !ok {
				continue
			}
			t.recordProgress(data["instruction"])
		}
	}
}

// register seeds info's progress tracking for a workflow fingerprint
// this node is about to run, so a concurrent request-response lookup
// during the run reports the real task count instead of "unknown".
func (t *workflowInfoTracker) register(fingerprint string, numTasks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.infos[fingerprint] = workflow.WorkflowInfo{Fingerprint: fingerprint, NumTasks: numTasks}
}

// recordProgress appends an instruction fingerprint to the progress
// list of whichever workflow is currently being tracked. Since a node
// runs one workflow submission at a time in this minimal implementation,
// the instruction is recorded against every workflow currently
// registered; a node that pipelines concurrent submissions would need
// to key this by a per-run identifier instead.
func (t *workflowInfoTracker) recordProgress(instructionFingerprint string) {
	if instructionFingerprint == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for fp, info := range t.infos {
		info.Progress = append(info.Progress, instructionFingerprint)
		t.infos[fp] = info
	}
}

// WorkflowInfo satisfies pkg/p2p's WorkflowInfoSource.
func (t *workflowInfoTracker) WorkflowInfo(ctx context.Context, workflowFingerprint string) (workflow.WorkflowInfo, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.infos[workflowFingerprint]
	return info, ok, nil
}
