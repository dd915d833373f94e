package p2p

import (
	"context"
	"errors"

	"github.com/libp2p/go-libp2p/core/routing"

	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// AdvertiseReceipt puts receipt into the DHT under its instruction
// fingerprint, so a peer that doesn't receive it over gossip (a
// reconnecting node, one that joined after publication) can still find
// it by content-routed lookup.
func (n *Node) AdvertiseReceipt(ctx context.Context, receipt workflow.Receipt) error {
	b, err := workflow.EncodeReceiptCapsule(receipt)
	if err != nil {
		return newError(ErrTransport, "", "encoding receipt capsule: "+err.Error())
	}
	key := receiptKey(receipt.Ran.String())
	if err := n.dht.PutValue(ctx, key, b); err != nil {
		return newError(ErrTransport, key, "putting receipt record: "+err.Error())
	}
	return nil
}

// FetchReceipt satisfies pkg/resolver's PeerSource: it looks up a
// receipt for instructionFingerprint in the DHT. ok is false (with a nil
// error) when the DHT genuinely has no record, distinct from a
// transport-level failure.
func (n *Node) FetchReceipt(ctx context.Context, instructionFingerprint string) (workflow.Receipt, bool, error) {
	key := receiptKey(instructionFingerprint)
	b, err := n.dht.GetValue(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return workflow.Receipt{}, false, nil
		}
		return workflow.Receipt{}, false, newError(ErrTransport, key, "getting receipt record: "+err.Error())
	}
	receipt, err := decodeReceiptRecord(b)
	if err != nil {
		return workflow.Receipt{}, false, err
	}
	return receipt, true, nil
}

// FetchResource satisfies pkg/worker's NetworkFetcher for a
// fingerprint-variant Resource: the bytes behind a content fingerprint
// are whatever a prior instruction's receipt produced, so a fetch for
// one is just a receipt lookup followed by unwrapping its "ok" value.
// A URL-variant Resource gets an ErrTransport error here; nothing in
// this module fetches URLs over HTTP.
func (n *Node) FetchResource(ctx context.Context, resource workflow.Resource) ([]byte, error) {
	if !resource.IsFingerprint() {
		return nil, newError(ErrTransport, resource.String(), "p2p.Node only resolves fingerprint-variant resources")
	}
	receipt, ok, err := n.FetchReceipt(ctx, resource.Fingerprint().String())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrRecordNotFound, resource.String(), "no receipt advertised for this fingerprint")
	}
	b, ok := receipt.Out.Value.([]byte)
	if !ok {
		return nil, newError(ErrVersionMismatch, resource.String(), "receipt output is not raw bytes")
	}
	return b, nil
}

// AdvertiseWorkflowInfo puts the current progress snapshot of a running
// workflow into the DHT under its fingerprint, so a peer tracking a
// workflow it didn't submit can poll for status.
func (n *Node) AdvertiseWorkflowInfo(ctx context.Context, info workflow.WorkflowInfo) error {
	b, err := workflow.EncodeWorkflowInfoCapsule(info)
	if err != nil {
		return newError(ErrTransport, "", "encoding workflow-info capsule: "+err.Error())
	}
	key := workflowInfoKey(info.Fingerprint)
	if err := n.dht.PutValue(ctx, key, b); err != nil {
		return newError(ErrTransport, key, "putting workflow-info record: "+err.Error())
	}
	return nil
}

// FetchWorkflowInfo looks up the advertised progress snapshot for a
// workflow fingerprint.
func (n *Node) FetchWorkflowInfo(ctx context.Context, workflowFingerprint string) (workflow.WorkflowInfo, bool, error) {
	key := workflowInfoKey(workflowFingerprint)
	b, err := n.dht.GetValue(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return workflow.WorkflowInfo{}, false, nil
		}
		return workflow.WorkflowInfo{}, false, newError(ErrTransport, key, "getting workflow-info record: "+err.Error())
	}
	info, err := decodeWorkflowInfoRecord(b)
	if err != nil {
		return workflow.WorkflowInfo{}, false, err
	}
	return info, true, nil
}

// isNotFound recognizes the DHT's own "no record" sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, routing.ErrNotFound)
}
