package p2p

import "github.com/Mindburn-Labs/homestar/pkg/workflow"

// ReceiptsTopic is the gossipsub topic every node publishes and
// subscribes to for newly-produced receipts.
const ReceiptsTopic = "receipts"

// receiptKey and workflowInfoKey namespace the two record kinds this
// node puts into (and gets from) the DHT, so a receipt fingerprint and
// a workflow fingerprint never collide under the same raw key even if
// their base32 text happened to be equal.
func receiptKey(instructionFingerprint string) string {
	return "/homestar/receipt/" + instructionFingerprint
}

func workflowInfoKey(workflowFingerprint string) string {
	return "/homestar/workflow/" + workflowFingerprint
}

// decodeReceiptRecord validates a DHT/gossip payload as a receipt
// capsule, distinguishing "not a capsule at all" (malformed JSON,
// reported as ErrVersionMismatch) from "wrong, missing or unrecognized
// tag" (reported as ErrCapsuleTagMismatch).
func decodeReceiptRecord(b []byte) (workflow.Receipt, error) {
	r, ok, err := workflow.DecodeReceiptCapsule(b)
	if err != nil {
		return workflow.Receipt{}, newError(ErrVersionMismatch, "", err.Error())
	}
	if !ok {
		return workflow.Receipt{}, newError(ErrCapsuleTagMismatch, "", "expected a "+workflow.CapsuleReceipt+" capsule")
	}
	return r, nil
}

func decodeWorkflowInfoRecord(b []byte) (workflow.WorkflowInfo, error) {
	info, ok, err := workflow.DecodeWorkflowInfoCapsule(b)
	if err != nil {
		return workflow.WorkflowInfo{}, newError(ErrVersionMismatch, "", err.Error())
	}
	if !ok {
		return workflow.WorkflowInfo{}, newError(ErrCapsuleTagMismatch, "", "expected a "+workflow.CapsuleWorkflow+" capsule")
	}
	return info, nil
}
