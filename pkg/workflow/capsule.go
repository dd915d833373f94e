package workflow

import (
	"encoding/json"
	"fmt"
)

// Capsule tags recognized on the wire. The gossip receive loop in pkg/p2p
// drops a message with an unknown tag; pkg/p2p's DHT record readers
// return an ErrCapsuleTagMismatch error for one rather than treating the
// record as absent.
const (
	CapsuleReceipt  = "receipt/1.0"
	CapsuleWorkflow = "workflow/1.0"
)

// EncodeReceiptCapsule wraps r in the versioned `{"receipt/1.0": <receipt>}` envelope.
func EncodeReceiptCapsule(r Receipt) ([]byte, error) {
	return json.Marshal(map[string]Receipt{CapsuleReceipt: r})
}

// DecodeReceiptCapsule unwraps a `{"receipt/1.0": <receipt>}` envelope.
// A missing or unrecognized tag returns ok=false, not an error: callers
// should drop the message silently.
func DecodeReceiptCapsule(b []byte) (r Receipt, ok bool, err error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return Receipt{}, false, err
	}
	raw, tagged := m[CapsuleReceipt]
	if !tagged {
		return Receipt{}, false, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, false, fmt.Errorf("workflow: malformed receipt capsule: %w", err)
	}
	return r, true, nil
}

// WorkflowInfo is the DHT-advertised summary of a running or completed
// workflow: its fingerprint, task count, and per-task status snapshot.
type WorkflowInfo struct {
	Fingerprint string   `json:"fingerprint"`
	NumTasks    int      `json:"num_tasks"`
	Progress    []string `json:"progress"` // one of "pending","ran","failed" per task, in order
}

// EncodeWorkflowInfoCapsule wraps info in the versioned
// `{"workflow/1.0": <info>}` envelope.
func EncodeWorkflowInfoCapsule(info WorkflowInfo) ([]byte, error) {
	return json.Marshal(map[string]WorkflowInfo{CapsuleWorkflow: info})
}

// DecodeWorkflowInfoCapsule unwraps a `{"workflow/1.0": <info>}` envelope.
func DecodeWorkflowInfoCapsule(b []byte) (info WorkflowInfo, ok bool, err error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return WorkflowInfo{}, false, err
	}
	raw, tagged := m[CapsuleWorkflow]
	if !tagged {
		return WorkflowInfo{}, false, nil
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return WorkflowInfo{}, false, fmt.Errorf("workflow: malformed workflow-info capsule: %w", err)
	}
	return info, true, nil
}
