package main

import (
	"context"

	"github.com/Mindburn-Labs/homestar/pkg/blobstore"
	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/p2p"
	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/sandbox"
	"github.com/Mindburn-Labs/homestar/pkg/worker"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// workflowSubmitter satisfies pkg/rpcserver's Submitter: it builds a
// fresh pkg/worker.Worker per submission (a Worker is not reusable
// across workflows) wired to this node's network, peer, and gossip
// paths, runs it, and advertises the workflow's completion progress to
// the DHT once it finishes.
type workflowSubmitter struct {
	bus      *events.Bus
	sandbox  sandbox.Sandbox
	receipts receiptstore.Store
	local    blobstore.Store
	node     *p2p.Node
	info     *workflowInfoTracker
}

func newWorkflowSubmitter(bus *events.Bus, sb sandbox.Sandbox, receipts receiptstore.Store, local blobstore.Store, node *p2p.Node, info *workflowInfoTracker) *workflowSubmitter {
	return &workflowSubmitter{bus: bus, sandbox: sb, receipts: receipts, local: local, node: node, info: info}
}

// Submit runs wf to completion and returns every receipt produced.
func (s *workflowSubmitter) Submit(ctx context.Context, wf workflow.Workflow) (map[string]workflow.Receipt, error) {
	fp, fpErr := wf.Fingerprint()
	if fpErr == nil {
		s.info.register(fp.String(), len(wf.Tasks))
	}

	w := worker.New(wf, worker.Config{}, s.bus, s.sandbox, s.receipts, s.local, s.node, s.node, s.node)
	result, err := w.Run(ctx)
	if err != nil {
		return nil, err
	}

	if fpErr == nil {
		_ = s.node.AdvertiseWorkflowInfo(ctx, workflow.WorkflowInfo{
			Fingerprint: fp.String(),
			NumTasks:    len(wf.Tasks),
			Progress:    progressKeys(result.Receipts),
		})
	}

	return result.Receipts, nil
}

func progressKeys(receipts map[string]workflow.Receipt) []string {
	keys := make([]string, 0, len(receipts))
	for k := range receipts {
		keys = append(keys, k)
	}
	return keys
}
