package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// receiptStoreAdapter satisfies pkg/resolver's ReceiptSource by
// translating between workflow.Receipt and the JSON-blob shape
// receiptstore.Store actually persists.
type receiptStoreAdapter struct {
	store receiptstore.Store
}

func newReceiptStoreAdapter(store receiptstore.Store) *receiptStoreAdapter {
	return &receiptStoreAdapter{store: store}
}

// GetByInstruction satisfies resolver.ReceiptSource.
func (a *receiptStoreAdapter) GetByInstruction(ctx context.Context, instructionFingerprint string) (workflow.Receipt, bool, error) {
	stored, ok, err := a.store.Get(ctx, instructionFingerprint)
	if err != nil {
		return workflow.Receipt{}, false, newError(ErrStoreFailure, err.Error())
	}
	if !ok {
		return workflow.Receipt{}, false, nil
	}
	var receipt workflow.Receipt
	if err := json.Unmarshal(stored.JSON, &receipt); err != nil {
		return workflow.Receipt{}, false, fmt.Errorf("worker: decode stored receipt: %w", err)
	}
	return receipt, true, nil
}

// Put satisfies resolver.ReceiptSource. It is insert-or-skip, matching
// receiptstore.Store's own immutability guarantee.
func (a *receiptStoreAdapter) Put(ctx context.Context, receipt workflow.Receipt) error {
	_, err := a.put(ctx, receipt)
	return err
}

func (a *receiptStoreAdapter) put(ctx context.Context, receipt workflow.Receipt) (receiptstore.StoredReceipt, error) {
	b, err := json.Marshal(receipt)
	if err != nil {
		return receiptstore.StoredReceipt{}, fmt.Errorf("worker: encode receipt: %w", err)
	}
	receiptFp, err := receipt.Fingerprint()
	if err != nil {
		return receiptstore.StoredReceipt{}, fmt.Errorf("worker: fingerprint receipt: %w", err)
	}
	stored := receiptstore.StoredReceipt{
		InstructionFingerprint: receipt.Ran.Fingerprint().String(),
		ReceiptFingerprint:     receiptFp.String(),
		JSON:                   b,
	}
	put, err := a.store.Put(ctx, stored)
	if err != nil {
		return receiptstore.StoredReceipt{}, newError(ErrStoreFailure, err.Error())
	}
	return put, nil
}
