package p2p

import (
	"context"

	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// ReceiptSink is where a gossip-received receipt is cached locally so a
// later resolver lookup for the same instruction fingerprint can be
// satisfied without another round trip. pkg/receiptstore.Store's Put
// signature (after the worker's marshal-to-StoredReceipt step) is this
// shape in practice, but Node depends only on the narrow interface.
type ReceiptSink interface {
	Put(ctx context.Context, receipt workflow.Receipt) error
}

// SetReceiptSink wires sink as the destination for every well-formed
// receipt this node receives over gossip.
func (n *Node) SetReceiptSink(sink ReceiptSink) {
	n.sinkMu.Lock()
	n.sink = sink
	n.sinkMu.Unlock()
}

// PublishReceipt satisfies pkg/worker's Gossip interface: it broadcasts
// receipt, capsule-tagged, to every peer subscribed to ReceiptsTopic.
func (n *Node) PublishReceipt(ctx context.Context, receipt workflow.Receipt) error {
	b, err := workflow.EncodeReceiptCapsule(receipt)
	if err != nil {
		return newError(ErrTransport, "", "encoding receipt capsule: "+err.Error())
	}
	if err := n.topic.Publish(ctx, b); err != nil {
		return newError(ErrTransport, "", "publishing to "+ReceiptsTopic+": "+err.Error())
	}
	n.emit(events.NetworkPublishedReceiptPubsub, map[string]string{"instruction": receipt.Ran.String()})
	return nil
}

// receiveGossipLoop drains n.sub for the node's lifetime, validating
// and routing each inbound message until ctx is cancelled.
func (n *Node) receiveGossipLoop(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		if n.cfg.Limiter != nil {
			allowed, err := n.cfg.Limiter.Allow(ctx, msg.ReceivedFrom.String())
			if err != nil || !allowed {
				continue
			}
		}

		receipt, err := decodeReceiptRecord(msg.Data)
		if err != nil {
			continue
		}

		n.sinkMu.RLock()
		sink := n.sink
		n.sinkMu.RUnlock()
		if sink != nil {
			_ = sink.Put(ctx, receipt)
		}

		n.emit(events.NetworkReceivedReceiptPubsub, map[string]string{"instruction": receipt.Ran.String(), "from": msg.ReceivedFrom.String()})
	}
}
