package p2p

import (
	"context"
	"encoding/json"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// WorkflowInfoProtocol is the point-to-point request-response protocol
// a node uses to ask a specific peer (rather than the whole DHT) for a
// workflow's current progress.
const WorkflowInfoProtocol protocol.ID = "/homestar/workflow-info/1.0.0"

// WorkflowInfoSource answers a remote peer's workflow-info request from
// this node's own local state (its running/completed workflows), as
// opposed to AdvertiseWorkflowInfo's fire-and-forget DHT put.
type WorkflowInfoSource interface {
	WorkflowInfo(ctx context.Context, workflowFingerprint string) (workflow.WorkflowInfo, bool, error)
}

// SetWorkflowInfoSource wires source as the answer to incoming
// WorkflowInfoProtocol requests. Until set, every request is closed
// without a reply, which RequestWorkflowInfo reports as ok=false with a
// nil error.
func (n *Node) SetWorkflowInfoSource(source WorkflowInfoSource) {
	n.infoMu.Lock()
	n.info = source
	n.infoMu.Unlock()
}

type workflowInfoRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (n *Node) registerRequestResponseHandler() {
	n.host.SetStreamHandler(WorkflowInfoProtocol, n.handleWorkflowInfoStream)
}

func (n *Node) handleWorkflowInfoStream(s network.Stream) {
	defer s.Close()

	ctx := context.Background()
	if n.cfg.Limiter != nil {
		allowed, err := n.cfg.Limiter.Allow(ctx, s.Conn().RemotePeer().String())
		if err != nil || !allowed {
			return
		}
	}

	var req workflowInfoRequest
	if err := json.NewDecoder(s).Decode(&req); err != nil {
		return
	}

	n.infoMu.RLock()
	source := n.info
	n.infoMu.RUnlock()
	if source == nil {
		return
	}

	info, ok, err := source.WorkflowInfo(ctx, req.Fingerprint)
	if err != nil || !ok {
		return
	}
	b, err := workflow.EncodeWorkflowInfoCapsule(info)
	if err != nil {
		return
	}
	_, _ = s.Write(b)
}

// RequestWorkflowInfo asks peerID directly for a workflow's progress,
// bypassing the DHT. ok is false (with a nil error) when the peer closed
// the stream without a record. RequestTimeout bounds opening the stream;
// a timeout there is an ErrTransport error. Reading the reply is bounded
// only by ctx.
func (n *Node) RequestWorkflowInfo(ctx context.Context, peerID, workflowFingerprint string) (workflow.WorkflowInfo, bool, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return workflow.WorkflowInfo{}, false, newError(ErrTransport, peerID, "decoding peer id: "+err.Error())
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()

	s, err := n.host.NewStream(reqCtx, pid, WorkflowInfoProtocol)
	if err != nil {
		return workflow.WorkflowInfo{}, false, newError(ErrTransport, peerID, "opening stream: "+err.Error())
	}
	defer s.Close()

	if err := json.NewEncoder(s).Encode(workflowInfoRequest{Fingerprint: workflowFingerprint}); err != nil {
		return workflow.WorkflowInfo{}, false, newError(ErrTransport, peerID, "sending request: "+err.Error())
	}
	_ = s.CloseWrite()

	b, err := io.ReadAll(s)
	if err != nil {
		return workflow.WorkflowInfo{}, false, newError(ErrTransport, peerID, "reading response: "+err.Error())
	}
	if len(b) == 0 {
		return workflow.WorkflowInfo{}, false, nil
	}

	info, err := decodeWorkflowInfoRecord(b)
	if err != nil {
		return workflow.WorkflowInfo{}, false, err
	}
	return info, true, nil
}
